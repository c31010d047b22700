package domain

import (
	"database/sql"
)

// Unit domain model (units table).
// Identity is immutable; descriptive attributes are free text. External
// snapshots reference a unit by its unit_number, either as a bare integer
// or as the trailing segment of a composite identifier like "1098/1".
type Unit struct {
	ID         int64          `db:"id"`
	UnitNumber int            `db:"unit_number"` // NOT NULL
	Building   sql.NullString `db:"building"`    // nullable
	Section    sql.NullString `db:"section"`     // nullable
	Address    sql.NullString `db:"address"`     // nullable
	CreatedAt  sql.NullTime   `db:"created_at"`
}
