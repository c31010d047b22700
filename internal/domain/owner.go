package domain

import (
	"database/sql"
	"strings"
)

// Owner domain model (owners table).
// A person or organization holding ownership of one or more units.
type Owner struct {
	ID          int64          `db:"id"`
	FirstName   string         `db:"first_name"`
	LastName    string         `db:"last_name"`
	TitleBefore sql.NullString `db:"title_before"` // nullable, honorific before name
	TitleAfter  sql.NullString `db:"title_after"`  // nullable, honorific after name
	BirthNumber sql.NullString `db:"birth_number"` // nullable
	CompanyID   sql.NullString `db:"company_id"`   // nullable, registration number for organizations
	OwnerType   string         `db:"owner_type"`   // "person" / "company"
	Email       sql.NullString `db:"email"`        // nullable
	Phone       sql.NullString `db:"phone"`        // nullable
	IsActive    bool           `db:"is_active"`
	CreatedAt   sql.NullTime   `db:"created_at"`
}

// DisplayName builds the human-readable name: optional title before,
// "LastName FirstName", optional title after. Company owners keep the
// company name in LastName with an empty FirstName.
func (o *Owner) DisplayName() string {
	parts := make([]string, 0, 3)
	if o.TitleBefore.Valid && o.TitleBefore.String != "" {
		parts = append(parts, o.TitleBefore.String)
	}
	name := strings.TrimSpace(o.LastName + " " + o.FirstName)
	if name != "" {
		parts = append(parts, name)
	}
	if o.TitleAfter.Valid && o.TitleAfter.String != "" {
		parts = append(parts, o.TitleAfter.String)
	}
	return strings.Join(parts, " ")
}
