package domain

import (
	"database/sql"
)

// OwnerUnit domain model (owner_units table).
// The temporal ownership edge between Owner and Unit. A row with
// valid_to NULL is the currently active link; co-ownership is multiple
// simultaneously active rows for the same unit. Once valid_to is set the
// row is immutable history — it is only ever closed by an exchange,
// never deleted or edited.
type OwnerUnit struct {
	ID            int64        `db:"id"`
	OwnerID       int64        `db:"owner_id"`
	UnitID        int64        `db:"unit_id"`
	OwnershipType string       `db:"ownership_type"` // e.g. SJM, VL, Podílové
	Share         string       `db:"share"`          // recorded share, e.g. "1/2"
	ValidFrom     sql.NullTime `db:"valid_from"`
	ValidTo       sql.NullTime `db:"valid_to"` // NULL = currently active
}

// Active reports whether the link is currently valid.
func (ou *OwnerUnit) Active() bool {
	return !ou.ValidTo.Valid
}
