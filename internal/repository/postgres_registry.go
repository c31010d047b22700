package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"svj-registry/internal/domain"
)

type PostgresRegistryRepo struct {
	db *sql.DB
}

func NewPostgresRegistryRepo(db *sql.DB) *PostgresRegistryRepo {
	return &PostgresRegistryRepo{db: db}
}

const unitColumns = `
	id,
	unit_number,
	building,
	section,
	address,
	created_at
`

const ownerColumns = `
	id,
	first_name,
	last_name,
	title_before,
	title_after,
	birth_number,
	company_id,
	owner_type,
	email,
	phone,
	is_active,
	created_at
`

// ============================================
// Unit lookups
// ============================================

func (r *PostgresRegistryRepo) FindUnitByIdentifier(ctx context.Context, identifier string) (*domain.Unit, error) {
	ident := strings.TrimSpace(identifier)
	if ident == "" {
		return nil, nil
	}

	if n, err := strconv.Atoi(ident); err == nil {
		return r.findUnitByNumber(ctx, n)
	}

	// Exact text match first (covers composite identifiers stored as-is).
	unit, err := r.scanUnit(r.db.QueryRowContext(ctx,
		`SELECT `+unitColumns+` FROM units WHERE unit_number::text = $1`, ident))
	if err != nil {
		return nil, err
	}
	if unit != nil {
		return unit, nil
	}

	// Composite identifier like "1098/1": the trailing segment is the
	// unit number.
	if idx := strings.LastIndex(ident, "/"); idx >= 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(ident[idx+1:])); err == nil {
			return r.findUnitByNumber(ctx, n)
		}
	}
	return nil, nil
}

func (r *PostgresRegistryRepo) findUnitByNumber(ctx context.Context, unitNumber int) (*domain.Unit, error) {
	return r.scanUnit(r.db.QueryRowContext(ctx,
		`SELECT `+unitColumns+` FROM units WHERE unit_number = $1`, unitNumber))
}

func (r *PostgresRegistryRepo) GetUnit(ctx context.Context, unitID int64) (*domain.Unit, error) {
	unit, err := r.scanUnit(r.db.QueryRowContext(ctx,
		`SELECT `+unitColumns+` FROM units WHERE id = $1`, unitID))
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, fmt.Errorf("unit %d: %w", unitID, ErrNotFound)
	}
	return unit, nil
}

func (r *PostgresRegistryRepo) scanUnit(row *sql.Row) (*domain.Unit, error) {
	var u domain.Unit
	err := row.Scan(
		&u.ID,
		&u.UnitNumber,
		&u.Building,
		&u.Section,
		&u.Address,
		&u.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ============================================
// Owner lookups
// ============================================

func (r *PostgresRegistryRepo) FindOwner(ctx context.Context, ownerID int64) (*domain.Owner, error) {
	var o domain.Owner
	err := r.db.QueryRowContext(ctx,
		`SELECT `+ownerColumns+` FROM owners WHERE id = $1`, ownerID,
	).Scan(
		&o.ID,
		&o.FirstName,
		&o.LastName,
		&o.TitleBefore,
		&o.TitleAfter,
		&o.BirthNumber,
		&o.CompanyID,
		&o.OwnerType,
		&o.Email,
		&o.Phone,
		&o.IsActive,
		&o.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PostgresRegistryRepo) ListActiveOwners(ctx context.Context) ([]*domain.Owner, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ownerColumns+` FROM owners WHERE is_active ORDER BY last_name, first_name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.Owner{}
	for rows.Next() {
		var o domain.Owner
		if err := rows.Scan(
			&o.ID,
			&o.FirstName,
			&o.LastName,
			&o.TitleBefore,
			&o.TitleAfter,
			&o.BirthNumber,
			&o.CompanyID,
			&o.OwnerType,
			&o.Email,
			&o.Phone,
			&o.IsActive,
			&o.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

// ============================================
// Ownership links
// ============================================

func (r *PostgresRegistryRepo) ActiveOwnershipFor(ctx context.Context, unitID int64) ([]*domain.OwnerUnit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, unit_id, ownership_type, share, valid_from, valid_to
		FROM owner_units
		WHERE unit_id = $1 AND valid_to IS NULL
		ORDER BY id`, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.OwnerUnit{}
	for rows.Next() {
		var ou domain.OwnerUnit
		if err := rows.Scan(
			&ou.ID,
			&ou.OwnerID,
			&ou.UnitID,
			&ou.OwnershipType,
			&ou.Share,
			&ou.ValidFrom,
			&ou.ValidTo,
		); err != nil {
			return nil, err
		}
		out = append(out, &ou)
	}
	return out, rows.Err()
}

func (r *PostgresRegistryRepo) UpdateActiveShare(ctx context.Context, unitID int64, share string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE owner_units SET share = $1 WHERE unit_id = $2 AND valid_to IS NULL`,
		share, unitID)
	if err != nil {
		return fmt.Errorf("failed to update share for unit %d: %w", unitID, err)
	}
	return nil
}

func (r *PostgresRegistryRepo) UpdateOwnerContact(ctx context.Context, ownerID int64, email, phone string) error {
	set := []string{}
	args := []any{ownerID}
	argN := 2

	if email != "" {
		set = append(set, fmt.Sprintf("email = $%d", argN))
		args = append(args, email)
		argN++
	}
	if phone != "" {
		set = append(set, fmt.Sprintf("phone = $%d", argN))
		args = append(args, phone)
		argN++
	}
	if len(set) == 0 {
		return nil
	}

	q := "UPDATE owners SET " + strings.Join(set, ", ") + " WHERE id = $1"
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("failed to update owner %d contact: %w", ownerID, err)
	}
	return nil
}

// ============================================
// Exchange
// ============================================

// PerformExchange runs the whole exchange in one transaction. The active
// links are locked with FOR UPDATE so the close cannot race a concurrent
// exchange; a mismatch between locked and closed rows aborts with
// ErrConflict.
func (r *PostgresRegistryRepo) PerformExchange(ctx context.Context, ex Exchange) (*ExchangeOutcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin exchange: %w", err)
	}
	defer tx.Rollback()

	// Re-validate the target owner inside the transaction.
	var active bool
	err = tx.QueryRowContext(ctx,
		`SELECT is_active FROM owners WHERE id = $1`, ex.NewOwnerID).Scan(&active)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("owner %d: %w", ex.NewOwnerID, ErrOwnerNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, fmt.Errorf("owner %d: %w", ex.NewOwnerID, ErrOwnerInactive)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, owner_id
		FROM owner_units
		WHERE unit_id = $1 AND valid_to IS NULL
		ORDER BY id
		FOR UPDATE`, ex.UnitID)
	if err != nil {
		return nil, err
	}
	var closedOwnerIDs []int64
	var lockedLinks int
	for rows.Next() {
		var linkID, ownerID int64
		if err := rows.Scan(&linkID, &ownerID); err != nil {
			rows.Close()
			return nil, err
		}
		closedOwnerIDs = append(closedOwnerIDs, ownerID)
		lockedLinks++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE owner_units SET valid_to = $1 WHERE unit_id = $2 AND valid_to IS NULL`,
		ex.Effective, ex.UnitID)
	if err != nil {
		return nil, fmt.Errorf("failed to close active links: %w", err)
	}
	closed, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if int(closed) != lockedLinks {
		return nil, fmt.Errorf("unit %d: %w", ex.UnitID, ErrConflict)
	}

	var newLinkID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO owner_units (owner_id, unit_id, ownership_type, share, valid_from)
		VALUES ($1, $2, '', '', $3)
		RETURNING id`,
		ex.NewOwnerID, ex.UnitID, ex.Effective,
	).Scan(&newLinkID)
	if err != nil {
		return nil, fmt.Errorf("failed to open new link: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sync_records SET is_resolved = TRUE WHERE id = $1`, ex.RecordID); err != nil {
		return nil, fmt.Errorf("failed to resolve record %d: %w", ex.RecordID, err)
	}

	oldValue := fmt.Sprintf("unit_id=%d, owners=[%s]", ex.UnitID, joinInt64(closedOwnerIDs))
	newValue := fmt.Sprintf("unit_id=%d, new_owner_id=%d, date=%s",
		ex.UnitID, ex.NewOwnerID, ex.Effective.Format("2006-01-02"))
	if ex.Note != "" {
		newValue += ", " + ex.Note
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audit_logs (actor, action, entity, record_id, old_value, new_value)
		VALUES ($1, $2, 'OwnerUnit', $3, $4, $5)`,
		ex.Actor, domain.ActionExchange, ex.UnitID, oldValue, newValue); err != nil {
		return nil, fmt.Errorf("failed to append audit entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit exchange: %w", err)
	}
	return &ExchangeOutcome{
		ClosedOwnerIDs: closedOwnerIDs,
		NewOwnerUnitID: newLinkID,
	}, nil
}

func joinInt64(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
