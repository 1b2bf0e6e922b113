// Package audit emits one structured record per tool invocation.
//
// Records are write-once. Each sink write is a single append; there is no
// ordering guarantee between records written by different sessions.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// KindToolInvocation is the event kind of a tool call record.
const KindToolInvocation = "tool_invocation"

// Record is an audit entry. Parameters hold the exact validated arguments
// passed to the tool; credentials never appear here.
type Record struct {
	ID          string         `json:"record_id"`
	Kind        string         `json:"kind"`
	PrincipalID string         `json:"principal"`
	SessionID   string         `json:"session,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Tool        string         `json:"tool"`
	Parameters  map[string]any `json:"parameters"`
}

// NewRecord stamps a tool invocation record with a fresh id and UTC time.
func NewRecord(principalID, sessionID, tool string, params map[string]any) Record {
	return Record{
		ID:          uuid.NewString(),
		Kind:        KindToolInvocation,
		PrincipalID: principalID,
		SessionID:   sessionID,
		Timestamp:   time.Now().UTC(),
		Tool:        tool,
		Parameters:  params,
	}
}

// TimestampISO renders the timestamp as ISO-8601 in UTC.
func (r Record) TimestampISO() string {
	return r.Timestamp.UTC().Format(time.RFC3339Nano)
}

// ParametersJSON encodes the parameter mapping.
func (r Record) ParametersJSON() (json.RawMessage, error) {
	if r.Parameters == nil {
		return json.RawMessage(`{}`), nil
	}
	b, err := json.Marshal(r.Parameters)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Sink receives audit records.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec Record) error

func (f SinkFunc) Write(ctx context.Context, rec Record) error { return f(ctx, rec) }

// Discard drops every record.
var Discard Sink = SinkFunc(func(context.Context, Record) error { return nil })

// LogSink writes each record as one structured log line.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink writes through logger; use a JSON handler on stderr for the
// canonical one-line-per-invocation audit stream.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(ctx context.Context, rec Record) error {
	s.logger.LogAttrs(ctx, slog.LevelInfo, "audit",
		slog.String("kind", rec.Kind),
		slog.String("record_id", rec.ID),
		slog.String("principal", rec.PrincipalID),
		slog.String("session", rec.SessionID),
		slog.String("timestamp", rec.TimestampISO()),
		slog.String("tool", rec.Tool),
		slog.Any("parameters", rec.Parameters),
	)
	return nil
}

// Multi fans a record out to every sink. All sinks are attempted; the
// returned error joins individual failures.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, rec Record) error {
		var errs []error
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.Write(ctx, rec); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
