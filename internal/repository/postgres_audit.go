package repository

import (
	"context"
	"database/sql"
	"fmt"

	"svj-registry/internal/domain"
)

// schema note: record_id is the numeric id of the audited entity
// (unit id for exchanges, owner id for contact transfers).

type PostgresAuditRepo struct {
	db *sql.DB
}

func NewPostgresAuditRepo(db *sql.DB) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db}
}

func (r *PostgresAuditRepo) AppendAudit(ctx context.Context, e *domain.AuditEntry) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO audit_logs (actor, action, entity, record_id, old_value, new_value)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		e.Actor, e.Action, e.Entity, e.RecordID, e.OldValue, e.NewValue,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (r *PostgresAuditRepo) AppendImportLog(ctx context.Context, e *domain.ImportLogEntry) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO import_logs (source, filename, records, status, details)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		e.Source, e.Filename, e.Records, e.Status, e.Details,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append import log: %w", err)
	}
	return nil
}

func (r *PostgresAuditRepo) ListAudit(ctx context.Context, entity string, recordID int64) ([]*domain.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, actor, action, entity, record_id, old_value, new_value, created_at
		FROM audit_logs
		WHERE entity = $1 AND record_id = $2
		ORDER BY created_at DESC, id DESC`, entity, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.AuditEntry{}
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(
			&e.ID,
			&e.Actor,
			&e.Action,
			&e.Entity,
			&e.RecordID,
			&e.OldValue,
			&e.NewValue,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

var _ AuditRepository = (*PostgresAuditRepo)(nil)
