package domain

import (
	"database/sql"
	"time"
)

// SyncStatus is the discrepancy taxonomy for one classified alignment.
type SyncStatus string

const (
	// StatusMissing: no resolvable current owner (or both sides empty).
	StatusMissing SyncStatus = "missing"
	// StatusMatch: normalized names equal and shares equal.
	StatusMatch SyncStatus = "match"
	// StatusShareMismatch: names equal (possibly reordered) but shares differ.
	StatusShareMismatch SyncStatus = "share_mismatch"
	// StatusReordered: external name is the current name with its two tokens swapped.
	StatusReordered SyncStatus = "reordered"
	// StatusPartial: similarity ratio at or above the partial threshold.
	StatusPartial SyncStatus = "partial"
	// StatusDifferent: none of the above.
	StatusDifferent SyncStatus = "different"
	// StatusRejected: operator rejected the record; terminal.
	StatusRejected SyncStatus = "rejected"
)

// SyncSession domain model (sync_sessions table).
// One reconciliation batch built from one uploaded snapshot. Never
// mutated after creation except through record-level resolution; deleted
// with cascade when the operator discards it.
type SyncSession struct {
	ID           int64     `db:"id"`
	Name         string    `db:"name"`
	SourceFormat string    `db:"source_format"` // provenance tag, e.g. "sousede.cz" / "internal"
	CreatedAt    time.Time `db:"created_at"`
}

// SyncRecord domain model (sync_records table).
// One classified alignment between an external row and the registry.
// ExternalRow keeps the verbatim source row (JSON) for selective field
// transfer later.
type SyncRecord struct {
	ID            int64         `db:"id"`
	SessionID     int64         `db:"session_id"`
	UnitID        sql.NullInt64 `db:"unit_id"` // NULL when no unit could be resolved
	Status        SyncStatus    `db:"status"`
	CurrentOwner  string        `db:"current_owner"`
	ExternalOwner string        `db:"external_owner"`
	CurrentShare  string        `db:"current_share"`
	ExternalShare string        `db:"external_share"`
	ExternalRow   string        `db:"external_row"` // JSON copy of the source row
	IsResolved    bool          `db:"is_resolved"`
}
