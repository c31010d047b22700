package ingest

import (
	"strings"
)

// Role is a semantic column role assigned by MapColumns.
type Role string

const (
	RoleUnit      Role = "unit"
	RoleOwner     Role = "owner"
	RoleFirstName Role = "first_name"
	RoleLastName  Role = "last_name"
	RoleShare     Role = "share"
)

// RoleMap maps a role to the snapshot header that carries it.
type RoleMap map[Role]string

// columnRule binds one role to its ordered, case-insensitive substring
// keywords. Precedence lives in the data: rules are tried top to bottom,
// and a header claimed by an earlier rule is never reconsidered.
type columnRule struct {
	role     Role
	keywords []string
}

// Keyword tables cover the formats seen in practice: Czech registry
// exports ("Jednotka", "Vlastník", "Podíl"), internal exports
// ("unit_number", "Příjmení", "Jméno") and sousede.cz ("Vlastníci
// jednotky").
var columnRules = []columnRule{
	{RoleUnit, []string{
		"jednotka", "unit_number", "unit", "byt",
		"číslo jednotky", "cislo jednotky", "č. jednotky",
		"číslo", "cislo",
	}},
	{RoleOwner, []string{
		"vlastník", "vlastnik", "vlastníci jednotky", "vlastnici jednotky",
		"owner", "jméno a příjmení", "jmeno a prijmeni", "name_with_titles",
	}},
	{RoleShare, []string{
		"podíl", "podil", "share", "sčd", "scd", "votes", "hlasy",
	}},
}

// nameFallbackRules apply only when no combined owner column was found.
var nameFallbackRules = []columnRule{
	{RoleLastName, []string{"příjmení", "prijmeni", "last_name", "lastname"}},
	{RoleFirstName, []string{"jméno", "jmeno", "first_name", "firstname"}},
}

// MapColumns assigns semantic roles to snapshot headers. For each rule in
// order, headers are scanned in file order and the first unclaimed header
// matching any keyword wins. Deterministic for a given header list; no
// row data is inspected. When no combined owner column exists, separate
// last-/first-name columns are detected instead and RoleOwner is absent
// from the result.
func MapColumns(headers []string) RoleMap {
	mapping := RoleMap{}
	claimed := make(map[string]bool, len(headers))

	apply := func(rules []columnRule) {
		for _, rule := range rules {
			for _, h := range headers {
				if claimed[h] {
					continue
				}
				if headerMatches(h, rule.keywords) {
					mapping[rule.role] = h
					claimed[h] = true
					break
				}
			}
		}
	}

	apply(columnRules)
	if _, ok := mapping[RoleOwner]; !ok {
		apply(nameFallbackRules)
	}
	return mapping
}

func headerMatches(header string, keywords []string) bool {
	hl := strings.ToLower(strings.TrimSpace(header))
	for _, kw := range keywords {
		if strings.Contains(hl, kw) {
			return true
		}
	}
	return false
}
