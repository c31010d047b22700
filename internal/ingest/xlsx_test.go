package ingest

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		for j, val := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", cell, val))
		}
	}
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestIsXLSX(t *testing.T) {
	wb := buildWorkbook(t, [][]any{{"a"}})
	require.True(t, IsXLSX(wb))
	require.False(t, IsXLSX([]byte("Jednotka;Vlastník\n")))
	require.False(t, IsXLSX(nil))
}

func TestDecodeXLSX(t *testing.T) {
	wb := buildWorkbook(t, [][]any{
		{"Jednotka", "Vlastník", "Podíl"},
		{"1098/1", "Novák Jan", "1/2"},
		{"1098/2", "Svobodová Marie", "1/2"},
	})
	snap, err := DecodeXLSX(wb)
	require.NoError(t, err)
	require.Equal(t, []string{"Jednotka", "Vlastník", "Podíl"}, snap.Headers)
	require.Equal(t, 2, snap.Total)
	require.Equal(t, "Novák Jan", snap.Rows[0]["Vlastník"])
	require.Equal(t, "internal", snap.SourceFormat)
}

func TestDecodeXLSXSkipsLeadingEmptyRows(t *testing.T) {
	wb := buildWorkbook(t, [][]any{
		{},
		{"Jednotka", "Vlastník"},
		{"1", "Novák"},
	})
	snap, err := DecodeXLSX(wb)
	require.NoError(t, err)
	require.Equal(t, []string{"Jednotka", "Vlastník"}, snap.Headers)
	require.Equal(t, 1, snap.Total)
}

func TestDecodeXLSXEmptyWorkbook(t *testing.T) {
	wb := buildWorkbook(t, nil)
	_, err := DecodeXLSX(wb)
	require.ErrorIs(t, err, ErrNoHeader)
}

func TestDecodeXLSXSniffsSousedeFormat(t *testing.T) {
	wb := buildWorkbook(t, [][]any{
		{"Byt", "Vlastníci jednotky", "Katastralni uzemi"},
		{"1", "Novák Jan", "Praha"},
	})
	snap, err := DecodeXLSX(wb)
	require.NoError(t, err)
	require.Equal(t, SourceFormatSousede, snap.SourceFormat)
}
