package mcpserver

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wilhg/summon/pkg/auth"
	"github.com/wilhg/summon/pkg/errmodel"
	"github.com/wilhg/summon/pkg/runtime"
)

// Paths of the legacy event-stream transport.
const (
	SSEPath        = "/sse"
	SSEMessagePath = "/sse/message"
)

// sseHandler serves the 2024-11-05 SSE transport: a hanging GET on SSEPath
// streams server messages, and the client POSTs its messages to
// SSEMessagePath?sessionid=<id>.
type sseHandler struct {
	srv *Server

	mu    sync.Mutex
	conns map[string]*sseConn
}

type sseConn struct {
	transport *mcp.SSEServerTransport
	session   *runtime.Session
	// ready is closed once the protocol session exists.
	ready chan struct{}

	mu sync.Mutex
	ss *mcp.ServerSession
}

func (c *sseConn) bind(ss *mcp.ServerSession) {
	c.mu.Lock()
	c.ss = ss
	c.mu.Unlock()
	close(c.ready)
}

func (c *sseConn) close() {
	c.mu.Lock()
	ss := c.ss
	c.mu.Unlock()
	if ss != nil {
		_ = ss.Close()
	}
}

func newSSEHandler(s *Server) *sseHandler {
	return &sseHandler{srv: s, conns: make(map[string]*sseConn)}
}

func (h *sseHandler) get(id string) *sseConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns[id]
}

// serveStream opens a session and holds the event stream until the client
// goes away or the session ends.
func (h *sseHandler) serveStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errmodel.WriteHTTP(w, r, errmodel.Policy("method_not_allowed", "use GET to open an event stream", nil))
		return
	}
	p, ok := auth.FromContext(r.Context())
	if !ok {
		errmodel.WriteHTTP(w, r, errmodel.Unauthorized("no principal", nil))
		return
	}
	sess, server, err := h.srv.openSession(p, TransportSSE)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	conn := &sseConn{
		transport: &mcp.SSEServerTransport{
			Endpoint: SSEMessagePath + "?sessionid=" + url.QueryEscape(sess.ID),
			Response: w,
		},
		session: sess,
		ready:   make(chan struct{}),
	}
	// The endpoint event goes out during Connect, so the conn is routable
	// before it; messages wait for bind.
	h.mu.Lock()
	h.conns[sess.ID] = conn
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.conns, sess.ID)
		h.mu.Unlock()
	}()

	ss, err := server.Connect(r.Context(), conn.transport, nil)
	if err != nil {
		h.srv.logger.ErrorContext(r.Context(), "sse connect failed", slog.String("session", sess.ID), slog.Any("error", err))
		return
	}
	defer ss.Close()
	conn.bind(ss)

	ended := make(chan struct{})
	go func() {
		_ = ss.Wait()
		close(ended)
	}()
	select {
	case <-r.Context().Done():
	case <-ended:
	}
}

// serveMessage delivers one client message to its session.
func (h *sseHandler) serveMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		errmodel.WriteHTTP(w, r, errmodel.Policy("method_not_allowed", "use POST to send messages", nil))
		return
	}
	id := r.URL.Query().Get("sessionid")
	if id == "" {
		errmodel.WriteHTTP(w, r, errmodel.Framing("sessionid must be provided", nil))
		return
	}
	conn := h.get(id)
	if conn == nil {
		errmodel.WriteHTTP(w, r, errmodel.Validation(errmodel.CodeNotFound, "session not found", map[string]any{"session": id}))
		return
	}
	if p, _ := auth.FromContext(r.Context()); p.ID() != conn.session.Principal.ID() {
		errmodel.WriteHTTP(w, r, errmodel.Policy("forbidden", "session is bound to another principal", map[string]any{"session": id}))
		return
	}

	select {
	case <-conn.ready:
	case <-r.Context().Done():
		return
	}

	body, err := readMessage(w, r, false)
	if err != nil {
		ferr := errmodel.Framing("malformed protocol message", err)
		h.srv.logger.WarnContext(r.Context(), "terminating session on framing error",
			slog.String("session", id),
			slog.Any("error", ferr),
		)
		conn.close()
		errmodel.WriteHTTP(w, r, ferr)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	conn.transport.ServeHTTP(w, r)
}
