package repository

import (
	"context"

	"svj-registry/internal/domain"
)

// AuditRepository is the append-only audit/import-log sink. Entries are
// never mutated or deleted.
type AuditRepository interface {
	AppendAudit(ctx context.Context, e *domain.AuditEntry) error
	AppendImportLog(ctx context.Context, e *domain.ImportLogEntry) error

	// ListAudit returns entries for one entity/record, newest first.
	ListAudit(ctx context.Context, entity string, recordID int64) ([]*domain.AuditEntry, error)
}
