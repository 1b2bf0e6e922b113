package mcpserver

import (
	"sort"
	"sync"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wilhg/summon/pkg/runtime"
)

type tracked struct {
	session *runtime.Session
	ss      *mcp.ServerSession
}

// Tracker holds the sessions that completed the handshake and have not
// disconnected yet, together with their protocol sessions.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]tracked
}

func newTracker() *Tracker {
	return &Tracker{sessions: make(map[string]tracked)}
}

func (t *Tracker) add(s *runtime.Session, ss *mcp.ServerSession) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[s.ID] = tracked{session: s, ss: ss}
}

func (t *Tracker) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, id)
}

// lookup returns the session registered under id.
func (t *Tracker) lookup(id string) (*runtime.Session, *mcp.ServerSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.sessions[id]
	return e.session, e.ss, ok
}

// Snapshot returns the open sessions ordered by opening time.
func (t *Tracker) Snapshot() []*runtime.Session {
	t.mu.Lock()
	out := make([]*runtime.Session, 0, len(t.sessions))
	for _, e := range t.sessions {
		out = append(out, e.session)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}
