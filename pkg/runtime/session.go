// Package runtime executes tool calls for a connected session.
package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wilhg/summon/pkg/auth"
	"github.com/wilhg/summon/pkg/tool"
)

// Session is the state of one transport connection. It owns its registry and
// the principal bound at authorization; nothing in it is shared with other
// sessions.
type Session struct {
	ID        string
	Transport string
	Principal auth.Principal
	Registry  *tool.Registry
	OpenedAt  time.Time

	calls atomic.Int64

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// NewSession binds a principal and a sealed registry to a fresh session id.
func NewSession(p auth.Principal, reg *tool.Registry, transport string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Transport: transport,
		Principal: p,
		Registry:  reg,
		OpenedAt:  time.Now().UTC(),
	}
}

// Calls returns the number of tool calls that passed validation.
func (s *Session) Calls() int64 { return s.calls.Load() }

// Close rejects further calls and waits for in-flight ones to finish.
// It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.inflight.Wait()
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) enter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.inflight.Add(1)
	return true
}

func (s *Session) leave() { s.inflight.Done() }

type sessionKey struct{}

// WithSession returns ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session a handler is running in.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}
