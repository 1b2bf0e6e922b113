// Package mcpserver serves the stance catalog over MCP.
//
// Every accepted connection gets its own runtime.Session and its own
// mcp.Server bound to the authorized principal. Tool discovery and tool calls
// are answered from the session's registry through the invocation engine.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wilhg/summon/pkg/auth"
	"github.com/wilhg/summon/pkg/errmodel"
	"github.com/wilhg/summon/pkg/runtime"
	"github.com/wilhg/summon/pkg/stance"
	"github.com/wilhg/summon/pkg/tool"
)

// Implementation identifies the server in the initialize handshake.
var Implementation = mcp.Implementation{Name: "Summon: Weight-Space Navigation", Version: "0.1.0"}

// Transport names recorded on sessions.
const (
	TransportSSE        = "sse"
	TransportStreamable = "streamable"
)

// Config configures a Server.
type Config struct {
	// Catalog selects the tools each session exposes.
	Catalog stance.Variant
	// Resolver turns bearer tokens into principals.
	Resolver auth.Resolver
	// Engine runs tool calls. Defaults to an engine with a discarding audit sink.
	Engine *runtime.Engine
	// ResourceURL is the public base URL of this server, used in the
	// protected resource metadata. Defaults to the request host.
	ResourceURL string
	// AuthorizationServer is the base URL that /authorize, /register and
	// /token are forwarded to. Empty answers those paths with 503.
	AuthorizationServer string
	// SessionTimeout closes /mcp sessions that see no request for this long.
	// Zero keeps idle sessions open.
	SessionTimeout time.Duration
	Logger         *slog.Logger
}

// Server is the HTTP face of the tool server.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	engine  *runtime.Engine
	tracker *Tracker
	sse     *sseHandler
	handler http.Handler
}

// New validates cfg and builds the router.
func New(cfg Config) (*Server, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("mcpserver: resolver is required")
	}
	if cfg.Catalog == "" {
		cfg.Catalog = stance.DefaultVariant
	}
	if _, err := stance.NewRegistry(cfg.Catalog); err != nil {
		return nil, fmt.Errorf("mcpserver: catalog %s: %w", cfg.Catalog, err)
	}
	s := &Server{cfg: cfg, logger: cfg.Logger, engine: cfg.Engine}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.engine == nil {
		s.engine = runtime.NewEngine(nil, runtime.WithLogger(s.logger))
	}
	s.tracker = newTracker()
	s.sse = newSSEHandler(s)
	h, err := s.routes()
	if err != nil {
		return nil, err
	}
	s.handler = h
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.handler.ServeHTTP(w, r) }

// Sessions returns the sessions currently open.
func (s *Server) Sessions() []*runtime.Session { return s.tracker.Snapshot() }

// openSession builds the per-connection state for principal p.
func (s *Server) openSession(p auth.Principal, transport string) (*runtime.Session, *mcp.Server, error) {
	reg, err := stance.NewRegistry(s.cfg.Catalog)
	if err != nil {
		return nil, nil, err
	}
	sess := runtime.NewSession(p, reg, transport)
	return sess, s.sessionServer(sess), nil
}

// sessionServer returns an mcp.Server dedicated to sess.
func (s *Server) sessionServer(sess *runtime.Session) *mcp.Server {
	impl := Implementation
	srv := mcp.NewServer(&impl, &mcp.ServerOptions{
		HasTools:     true,
		Logger:       s.logger.With("session", sess.ID),
		GetSessionID: func() string { return sess.ID },
		InitializedHandler: func(_ context.Context, req *mcp.InitializedRequest) {
			s.track(sess, req.Session)
		},
	})
	call := s.callTool(sess)
	for _, t := range sess.Registry.List() {
		srv.AddTool(wireTool(t), call)
	}
	srv.AddReceivingMiddleware(func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			switch method {
			case "tools/list":
				// The SDK lists tools sorted by name; clients see registration order.
				return listTools(sess.Registry), nil
			case "tools/call":
				if r, ok := req.(*mcp.CallToolRequest); ok {
					res, err := call(ctx, r)
					if err != nil {
						return nil, err
					}
					return res, nil
				}
			}
			return next(ctx, method, req)
		}
	})
	return srv
}

// track registers sess once the protocol handshake completes and tears it
// down when the connection ends.
func (s *Server) track(sess *runtime.Session, ss *mcp.ServerSession) {
	s.tracker.add(sess, ss)
	s.logger.Info("session opened",
		slog.String("session", sess.ID),
		slog.String("transport", sess.Transport),
		slog.Any("principal", sess.Principal),
	)
	go func() {
		_ = ss.Wait()
		sess.Close()
		s.tracker.remove(sess.ID)
		s.logger.Info("session closed",
			slog.String("session", sess.ID),
			slog.String("transport", sess.Transport),
			slog.String("principal", sess.Principal.ID()),
			slog.Duration("duration", time.Since(sess.OpenedAt)),
			slog.Int64("calls", sess.Calls()),
		)
	}()
}

func (s *Server) callTool(sess *runtime.Session) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := checkCaller(sess, req); err != nil {
			s.logger.WarnContext(ctx, "tool call rejected", slog.String("session", sess.ID), slog.Any("error", err))
			return nil, err
		}
		res, err := s.engine.Invoke(ctx, sess, req.Params.Name, req.Params.Arguments)
		if err != nil {
			if errmodel.IsCategory(err, errmodel.CategoryValidation) {
				s.logger.DebugContext(ctx, "tool call failed",
					slog.String("session", sess.ID),
					slog.String("tool", req.Params.Name),
					slog.Any("error", err),
				)
				return toolError(err), nil
			}
			return nil, err
		}
		return toCallToolResult(res), nil
	}
}

// checkCaller rejects calls whose bearer token belongs to someone other than
// the principal the session was opened for.
func checkCaller(sess *runtime.Session, req *mcp.CallToolRequest) error {
	if req.Extra == nil || req.Extra.TokenInfo == nil {
		return nil
	}
	p, ok := auth.PrincipalFromTokenInfo(req.Extra.TokenInfo)
	if !ok || p.ID() != sess.Principal.ID() {
		return errmodel.Unauthorized("session is bound to another principal", nil)
	}
	return nil
}

func wireTool(t *tool.Tool) *mcp.Tool {
	return &mcp.Tool{Name: t.Name, Description: t.Description, InputSchema: t.SchemaJSON()}
}

func listTools(reg *tool.Registry) *mcp.ListToolsResult {
	out := &mcp.ListToolsResult{Tools: []*mcp.Tool{}}
	for _, t := range reg.List() {
		out.Tools = append(out.Tools, wireTool(t))
	}
	return out
}

func toCallToolResult(res tool.Result) *mcp.CallToolResult {
	out := &mcp.CallToolResult{Content: make([]mcp.Content, 0, len(res.Content))}
	for _, c := range res.Content {
		out.Content = append(out.Content, &mcp.TextContent{Text: c.Text})
	}
	return out
}

// toolError reports a failed call in-band so the session stays usable. The
// text is the compact error as JSON.
func toolError(err error) *mcp.CallToolResult {
	text := err.Error()
	if b, merr := json.Marshal(errmodel.From(err)); merr == nil {
		text = string(b)
	}
	return &mcp.CallToolResult{IsError: true, Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}
