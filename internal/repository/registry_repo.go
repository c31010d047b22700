package repository

import (
	"context"
	"errors"
	"time"

	"svj-registry/internal/domain"
)

// Sentinel errors shared by the repository implementations. Callers use
// errors.Is to distinguish actionable failures.
var (
	// ErrNotFound: the requested session or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrOwnerNotFound: the exchange target owner does not exist.
	ErrOwnerNotFound = errors.New("owner not found")
	// ErrOwnerInactive: the exchange target owner exists but is inactive.
	ErrOwnerInactive = errors.New("owner is not active")
	// ErrConflict: the unit's active ownership changed between lookup and
	// commit; the exchange fails closed.
	ErrConflict = errors.New("active ownership changed concurrently")
)

// RegistryRepository is the persistent store for Owner/Unit/OwnerUnit
// records, including the transactional owner exchange.
type RegistryRepository interface {
	// FindUnitByIdentifier resolves an external snapshot identifier:
	// integer → exact unit_number, otherwise exact text match, otherwise
	// the trailing "/"-segment as unit_number. Returns (nil, nil) when
	// nothing matches — an unresolved unit is data, not an error.
	FindUnitByIdentifier(ctx context.Context, identifier string) (*domain.Unit, error)
	GetUnit(ctx context.Context, unitID int64) (*domain.Unit, error)

	// FindOwner returns (nil, nil) when the owner does not exist.
	FindOwner(ctx context.Context, ownerID int64) (*domain.Owner, error)
	ListActiveOwners(ctx context.Context) ([]*domain.Owner, error)

	// ActiveOwnershipFor lists the owner_units rows with valid_to NULL.
	ActiveOwnershipFor(ctx context.Context, unitID int64) ([]*domain.OwnerUnit, error)

	// UpdateActiveShare overwrites the recorded share on the unit's
	// active link(s). Used by selective update.
	UpdateActiveShare(ctx context.Context, unitID int64, share string) error

	// UpdateOwnerContact sets email and/or phone; empty values are left
	// untouched. Used by contact transfer.
	UpdateOwnerContact(ctx context.Context, ownerID int64, email, phone string) error

	// PerformExchange executes one atomic owner exchange: close every
	// active link of the unit at the effective date, open one new link
	// for the new owner, mark the sync record resolved and append the
	// audit entry — all in one transaction. Preconditions (owner exists
	// and is active, active links unchanged) are re-validated inside the
	// transaction and fail with ErrOwnerNotFound, ErrOwnerInactive or
	// ErrConflict leaving no mutation behind.
	PerformExchange(ctx context.Context, ex Exchange) (*ExchangeOutcome, error)
}

// Exchange describes one owner exchange to execute.
type Exchange struct {
	RecordID   int64
	UnitID     int64
	NewOwnerID int64
	Effective  time.Time
	Actor      string
	Note       string // optional annotation, e.g. bulk match score
}

// ExchangeOutcome reports what the committed exchange touched.
type ExchangeOutcome struct {
	ClosedOwnerIDs []int64
	NewOwnerUnitID int64
}
