package runtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wilhg/summon/pkg/audit"
	"github.com/wilhg/summon/pkg/errmodel"
	summonotel "github.com/wilhg/summon/pkg/otel"
	"github.com/wilhg/summon/pkg/tool"
)

// Engine resolves, validates, audits and runs tool calls.
type Engine struct {
	sink   audit.Sink
	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures the Engine at construction time.
type Option func(*Engine)

// WithLogger sets the logger used for audit sink failures.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// NewEngine constructs an Engine writing audit records to sink. A nil sink
// discards records.
func NewEngine(sink audit.Sink, opts ...Option) *Engine {
	if sink == nil {
		sink = audit.Discard
	}
	e := &Engine{sink: sink, logger: slog.Default(), tracer: summonotel.Tracer()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Invoke runs one tool call in sess.
//
// Lookup and validation failures return before anything is audited. Once the
// input is valid exactly one audit record is written, before the handler
// runs; a failing sink is logged and does not fail the call. The handler's
// result is returned unchanged.
func (e *Engine) Invoke(ctx context.Context, sess *Session, name string, raw json.RawMessage) (tool.Result, error) {
	ctx, span := e.tracer.Start(ctx, "tool.invoke", trace.WithAttributes(
		attribute.String("tool.name", name),
	))
	defer span.End()

	if sess == nil || sess.Registry == nil {
		err := errmodel.System("no_session", "tool call outside a session", map[string]any{"tool": name}, nil)
		span.SetStatus(codes.Error, err.Code)
		return tool.Result{}, err
	}
	span.SetAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("principal.login", sess.Principal.Login),
	)
	if !sess.enter() {
		err := errmodel.System("session_closed", "session is closed", map[string]any{"session": sess.ID}, nil)
		span.SetStatus(codes.Error, err.Code)
		return tool.Result{}, err
	}
	defer sess.leave()

	t, err := sess.Registry.Get(name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errmodel.CodeUnknownTool)
		return tool.Result{}, err
	}
	in, err := tool.Validate(t, raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errmodel.CodeInvalidInput)
		return tool.Result{}, err
	}
	sess.calls.Add(1)

	rec := audit.NewRecord(sess.Principal.ID(), sess.ID, name, in.Params())
	span.SetAttributes(attribute.String("audit.record_id", rec.ID))
	if err := e.sink.Write(ctx, rec); err != nil {
		span.AddEvent("audit.write_failed")
		e.logger.WarnContext(ctx, "audit write failed",
			slog.String("tool", name),
			slog.String("session", sess.ID),
			slog.String("record_id", rec.ID),
			slog.Any("error", err),
		)
	}

	return t.Handler(WithSession(ctx, sess), in), nil
}
