package domain

import (
	"database/sql"
	"time"
)

// Audit actions recorded by the engine.
const (
	ActionExchange        = "exchange"
	ActionBulkUpdate      = "bulk_update"
	ActionContactTransfer = "contact_transfer"
)

// AuditEntry domain model (audit_logs table). Append-only.
type AuditEntry struct {
	ID        int64         `db:"id"`
	Actor     string        `db:"actor"`
	Action    string        `db:"action"`
	Entity    string        `db:"entity"`    // affected model, e.g. "OwnerUnit"
	RecordID  sql.NullInt64 `db:"record_id"` // affected entity id (unit id for exchanges)
	OldValue  string        `db:"old_value"`
	NewValue  string        `db:"new_value"`
	CreatedAt time.Time     `db:"created_at"`
}

// ImportLogEntry domain model (import_logs table). Append-only summary of
// one import or bulk operation.
type ImportLogEntry struct {
	ID        int64     `db:"id"`
	Source    string    `db:"source"` // "csv" / "xlsx" / "exchange"
	Filename  string    `db:"filename"`
	Records   int       `db:"records"`
	Status    string    `db:"status"` // "success" / "partial" / "failed"
	Details   string    `db:"details"`
	CreatedAt time.Time `db:"created_at"`
}
