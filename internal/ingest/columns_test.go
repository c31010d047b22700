package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapColumnsCzechRegistryExport(t *testing.T) {
	mapping := MapColumns([]string{"Jednotka", "Vlastník", "Podíl"})
	require.Equal(t, "Jednotka", mapping[RoleUnit])
	require.Equal(t, "Vlastník", mapping[RoleOwner])
	require.Equal(t, "Podíl", mapping[RoleShare])
}

func TestMapColumnsSeparateNameColumns(t *testing.T) {
	mapping := MapColumns([]string{"Číslo jednotky", "Příjmení", "Jméno", "Podíl"})
	require.Equal(t, "Číslo jednotky", mapping[RoleUnit])
	require.Equal(t, "Příjmení", mapping[RoleLastName])
	require.Equal(t, "Jméno", mapping[RoleFirstName])
	_, hasOwner := mapping[RoleOwner]
	require.False(t, hasOwner)
}

func TestMapColumnsCombinedOwnerSuppressesNameFallback(t *testing.T) {
	mapping := MapColumns([]string{"Jednotka", "Jméno a příjmení", "Podíl"})
	require.Equal(t, "Jméno a příjmení", mapping[RoleOwner])
	_, hasLast := mapping[RoleLastName]
	_, hasFirst := mapping[RoleFirstName]
	require.False(t, hasLast)
	require.False(t, hasFirst)
}

func TestMapColumnsClaimedHeaderNotReused(t *testing.T) {
	// "Owner unit" is claimed by the unit rule first; the owner rule must
	// skip it and take the next matching header.
	mapping := MapColumns([]string{"Owner unit", "Owner name", "Share"})
	require.Equal(t, "Owner unit", mapping[RoleUnit])
	require.Equal(t, "Owner name", mapping[RoleOwner])
	require.Equal(t, "Share", mapping[RoleShare])
}

func TestMapColumnsShareAbbreviations(t *testing.T) {
	mapping := MapColumns([]string{"Jednotka", "Vlastník", "SČD"})
	require.Equal(t, "SČD", mapping[RoleShare])
}

func TestMapColumnsCaseInsensitive(t *testing.T) {
	mapping := MapColumns([]string{"UNIT_NUMBER", "OWNER", "SHARE"})
	require.Equal(t, "UNIT_NUMBER", mapping[RoleUnit])
	require.Equal(t, "OWNER", mapping[RoleOwner])
	require.Equal(t, "SHARE", mapping[RoleShare])
}

func TestMapColumnsSousedeExport(t *testing.T) {
	mapping := MapColumns([]string{"Byt", "Vlastníci jednotky", "Hlasy", "E-mail"})
	require.Equal(t, "Byt", mapping[RoleUnit])
	require.Equal(t, "Vlastníci jednotky", mapping[RoleOwner])
	require.Equal(t, "Hlasy", mapping[RoleShare])
}

func TestMapColumnsUnknownHeaders(t *testing.T) {
	mapping := MapColumns([]string{"Poznámka", "Datum"})
	require.Empty(t, mapping)
}

func TestMapColumnsDeterministic(t *testing.T) {
	headers := []string{"Jednotka", "Vlastník", "Podíl", "Příjmení"}
	first := MapColumns(headers)
	for i := 0; i < 20; i++ {
		require.Equal(t, first, MapColumns(headers))
	}
}
