package store

import "context"

// AuditStore appends and reads audit records. Appends are idempotent on
// RecordID: appending an existing id returns the stored record.
type AuditStore interface {
	AppendAudit(ctx context.Context, r AuditRecord) (AuditRecord, error)
	// ListAudit returns the most recent records for a principal, newest first.
	// An empty principalID lists across principals. limit <= 0 means no limit.
	ListAudit(ctx context.Context, principalID string, limit int) ([]AuditRecord, error)
}
