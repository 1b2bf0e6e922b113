package eval

import (
	"context"

	"github.com/wilhg/summon/pkg/auth"
	"github.com/wilhg/summon/pkg/runtime"
	"github.com/wilhg/summon/pkg/store"
	"github.com/wilhg/summon/pkg/tool"
)

// Replayed is the outcome of re-running one stored audit record.
type Replayed struct {
	Record store.AuditRecord
	Text   string
	Err    error
}

// ReplayAudit re-runs stored invocations against reg, oldest first. Records of
// the same original session share one replay session. Pass an engine with a
// discarding sink unless the replay itself should be audited.
func ReplayAudit(ctx context.Context, eng *runtime.Engine, reg *tool.Registry, st store.AuditStore, principalID string, limit int) ([]Replayed, error) {
	recs, err := st.ListAudit(ctx, principalID, limit)
	if err != nil {
		return nil, err
	}
	if eng == nil {
		eng = runtime.NewEngine(nil)
	}
	sessions := map[string]*runtime.Session{}
	defer func() {
		for _, s := range sessions {
			s.Close()
		}
	}()

	out := make([]Replayed, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		rec := recs[i]
		sess, ok := sessions[rec.SessionID]
		if !ok {
			sess = runtime.NewSession(auth.Principal{Login: rec.PrincipalID}, reg, "replay")
			sessions[rec.SessionID] = sess
		}
		res, err := eng.Invoke(ctx, sess, rec.Tool, rec.Parameters)
		out = append(out, Replayed{Record: rec, Text: res.String(), Err: err})
	}
	return out, nil
}
