package audit

import (
	"context"
	"fmt"

	"github.com/wilhg/summon/pkg/store"
)

// StoreSink appends records to a durable audit store.
type StoreSink struct {
	st store.AuditStore
}

// NewStoreSink wraps st.
func NewStoreSink(st store.AuditStore) *StoreSink { return &StoreSink{st: st} }

func (s *StoreSink) Write(ctx context.Context, rec Record) error {
	params, err := rec.ParametersJSON()
	if err != nil {
		return fmt.Errorf("encode audit parameters: %w", err)
	}
	_, err = s.st.AppendAudit(ctx, store.AuditRecord{
		RecordID:    rec.ID,
		Kind:        rec.Kind,
		PrincipalID: rec.PrincipalID,
		SessionID:   rec.SessionID,
		Tool:        rec.Tool,
		Parameters:  params,
		Timestamp:   rec.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}
