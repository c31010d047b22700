package repository

import (
	"context"
	"database/sql"
	"fmt"

	"svj-registry/internal/domain"
)

type PostgresSyncRepo struct {
	db *sql.DB
}

func NewPostgresSyncRepo(db *sql.DB) *PostgresSyncRepo {
	return &PostgresSyncRepo{db: db}
}

const syncRecordColumns = `
	id,
	session_id,
	unit_id,
	status,
	current_owner,
	external_owner,
	current_share,
	external_share,
	external_row,
	is_resolved
`

func (r *PostgresSyncRepo) CreateSession(ctx context.Context, session *domain.SyncSession, records []*domain.SyncRecord) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin session insert: %w", err)
	}
	defer tx.Rollback()

	var sessionID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sync_sessions (name, source_format)
		VALUES ($1, $2)
		RETURNING id, created_at`,
		session.Name, session.SourceFormat,
	).Scan(&sessionID, &session.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sync_records
			(session_id, unit_id, status, current_owner, external_owner,
			 current_share, external_share, external_row, is_resolved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.ExecContext(ctx,
			sessionID, rec.UnitID, rec.Status,
			rec.CurrentOwner, rec.ExternalOwner,
			rec.CurrentShare, rec.ExternalShare,
			rec.ExternalRow, rec.IsResolved)
		if err != nil {
			return 0, fmt.Errorf("failed to insert record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit session: %w", err)
	}
	session.ID = sessionID
	return sessionID, nil
}

func (r *PostgresSyncRepo) ListSessions(ctx context.Context) ([]*SessionSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.source_format, s.created_at,
		       COUNT(r.id),
		       COUNT(r.id) FILTER (WHERE r.status = $1)
		FROM sync_sessions s
		LEFT JOIN sync_records r ON r.session_id = s.id
		GROUP BY s.id
		ORDER BY s.created_at DESC`, domain.StatusMatch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*SessionSummary{}
	for rows.Next() {
		var s domain.SyncSession
		var summary SessionSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.SourceFormat, &s.CreatedAt,
			&summary.Total, &summary.Matches); err != nil {
			return nil, err
		}
		summary.Session = &s
		out = append(out, &summary)
	}
	return out, rows.Err()
}

func (r *PostgresSyncRepo) GetSession(ctx context.Context, sessionID int64) (*domain.SyncSession, error) {
	var s domain.SyncSession
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, source_format, created_at FROM sync_sessions WHERE id = $1`,
		sessionID,
	).Scan(&s.ID, &s.Name, &s.SourceFormat, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %d: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PostgresSyncRepo) DeleteSession(ctx context.Context, sessionID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM sync_records WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM sync_sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %d: %w", sessionID, ErrNotFound)
	}
	return tx.Commit()
}

func (r *PostgresSyncRepo) ListRecords(ctx context.Context, sessionID int64, status domain.SyncStatus) ([]*domain.SyncRecord, error) {
	q := `SELECT ` + syncRecordColumns + ` FROM sync_records WHERE session_id = $1`
	args := []any{sessionID}
	if status != "" {
		q += ` AND status = $2`
		args = append(args, status)
	}
	q += ` ORDER BY id`
	return r.queryRecords(ctx, q, args...)
}

func (r *PostgresSyncRepo) ListUnresolved(ctx context.Context, sessionID int64, status domain.SyncStatus) ([]*domain.SyncRecord, error) {
	return r.queryRecords(ctx,
		`SELECT `+syncRecordColumns+`
		 FROM sync_records
		 WHERE session_id = $1 AND status = $2 AND NOT is_resolved
		 ORDER BY id`,
		sessionID, status)
}

func (r *PostgresSyncRepo) queryRecords(ctx context.Context, query string, args ...any) ([]*domain.SyncRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.SyncRecord{}
	for rows.Next() {
		rec, err := scanSyncRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresSyncRepo) GetRecord(ctx context.Context, recordID int64) (*domain.SyncRecord, error) {
	var rec domain.SyncRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT `+syncRecordColumns+` FROM sync_records WHERE id = $1`, recordID,
	).Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.UnitID,
		&rec.Status,
		&rec.CurrentOwner,
		&rec.ExternalOwner,
		&rec.CurrentShare,
		&rec.ExternalShare,
		&rec.ExternalRow,
		&rec.IsResolved,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("record %d: %w", recordID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *PostgresSyncRepo) MarkResolved(ctx context.Context, recordID int64) error {
	return r.updateRecord(ctx, recordID,
		`UPDATE sync_records SET is_resolved = TRUE WHERE id = $1`)
}

func (r *PostgresSyncRepo) MarkRejected(ctx context.Context, recordID int64) error {
	return r.updateRecord(ctx, recordID,
		`UPDATE sync_records SET status = '`+string(domain.StatusRejected)+`', is_resolved = TRUE WHERE id = $1`)
}

func (r *PostgresSyncRepo) updateRecord(ctx context.Context, recordID int64, query string) error {
	res, err := r.db.ExecContext(ctx, query, recordID)
	if err != nil {
		return fmt.Errorf("failed to update record %d: %w", recordID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("record %d: %w", recordID, ErrNotFound)
	}
	return nil
}

func (r *PostgresSyncRepo) StatusCounts(ctx context.Context, sessionID int64) (map[domain.SyncStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM sync_records
		WHERE session_id = $1
		GROUP BY status`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[domain.SyncStatus]int{}
	for rows.Next() {
		var status domain.SyncStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncRecord(row rowScanner) (*domain.SyncRecord, error) {
	var rec domain.SyncRecord
	err := row.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.UnitID,
		&rec.Status,
		&rec.CurrentOwner,
		&rec.ExternalOwner,
		&rec.CurrentShare,
		&rec.ExternalShare,
		&rec.ExternalRow,
		&rec.IsResolved,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
