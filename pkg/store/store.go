// Package store defines persistence interfaces for audit records.
// Implementations must provide identical semantics across backends.
package store

import (
	"encoding/json"
	"time"
)

// AuditRecord is the persisted representation of an audit entry.
// Parameters hold the tool arguments as JSON; Seq is assigned by the store.
type AuditRecord struct {
	Seq         int64
	RecordID    string
	Kind        string
	PrincipalID string
	SessionID   string
	Tool        string
	Parameters  json.RawMessage
	Timestamp   time.Time
}
