package repository

import (
	"context"

	"svj-registry/internal/domain"
)

// SyncRepository persists reconciliation sessions and their records.
type SyncRepository interface {
	// CreateSession inserts the session and its classified records in one
	// transaction and returns the session id.
	CreateSession(ctx context.Context, session *domain.SyncSession, records []*domain.SyncRecord) (int64, error)
	ListSessions(ctx context.Context) ([]*SessionSummary, error)
	GetSession(ctx context.Context, sessionID int64) (*domain.SyncSession, error)
	// DeleteSession removes the session and cascades to its records.
	DeleteSession(ctx context.Context, sessionID int64) error

	// ListRecords returns the session's records, optionally filtered by
	// status ("" = all), in insertion order.
	ListRecords(ctx context.Context, sessionID int64, status domain.SyncStatus) ([]*domain.SyncRecord, error)
	// ListUnresolved returns unresolved records of the given status.
	ListUnresolved(ctx context.Context, sessionID int64, status domain.SyncStatus) ([]*domain.SyncRecord, error)
	GetRecord(ctx context.Context, recordID int64) (*domain.SyncRecord, error)

	// MarkResolved flips is_resolved; resolved is terminal for a record.
	MarkResolved(ctx context.Context, recordID int64) error
	// MarkRejected sets status rejected and resolves the record.
	MarkRejected(ctx context.Context, recordID int64) error

	StatusCounts(ctx context.Context, sessionID int64) (map[domain.SyncStatus]int, error)
}

// SessionSummary is one row of the session listing.
type SessionSummary struct {
	Session *domain.SyncSession `json:"session"`
	Total   int                 `json:"total"`
	Matches int                 `json:"matches"`
}
