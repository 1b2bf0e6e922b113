package entstore

import (
	"encoding/json"
	"time"

	"github.com/wilhg/summon/pkg/store"
)

func auditRecord(id, principal, tool string, params json.RawMessage) store.AuditRecord {
	return store.AuditRecord{
		RecordID:    id,
		Kind:        "tool_invocation",
		PrincipalID: principal,
		SessionID:   "sess-" + principal,
		Tool:        tool,
		Parameters:  params,
		Timestamp:   time.Date(2026, 10, 17, 12, 0, 0, 123456789, time.UTC),
	}
}
