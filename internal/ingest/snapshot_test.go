package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeSemicolonCSV(t *testing.T) {
	data := []byte("Jednotka;Vlastník;Podíl\n1098/1;Novák Jan;1/2\n1098/2;Svobodová Marie;1/2\n")
	snap, err := Decode(data, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"Jednotka", "Vlastník", "Podíl"}, snap.Headers)
	require.Equal(t, ';', snap.Delimiter)
	require.Equal(t, 2, snap.Total)
	require.Equal(t, "Novák Jan", snap.Rows[0]["Vlastník"])
	require.Equal(t, "1/2", snap.Rows[1]["Podíl"])
}

func TestDecodeStripsBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Jednotka;Vlastník\n1;Novák\n")...)
	snap, err := Decode(data, 0)
	require.NoError(t, err)
	require.Equal(t, "Jednotka", snap.Headers[0])
}

func TestDecodeAutodetectsComma(t *testing.T) {
	data := []byte("unit,owner,share\n1,Jan Novak,1/1\n")
	snap, err := Decode(data, 0)
	require.NoError(t, err)
	require.Equal(t, ',', snap.Delimiter)
	require.Equal(t, "Jan Novak", snap.Rows[0]["owner"])
}

func TestDecodeDelimiterTieFavorsSemicolon(t *testing.T) {
	// One of each; semicolon wins the tie.
	data := []byte("a;b\n1,2\n")
	snap, err := Decode(data, 0)
	require.NoError(t, err)
	require.Equal(t, ';', snap.Delimiter)
	require.Equal(t, "1,2", snap.Rows[0]["a"])
}

func TestDecodeDelimiterHintOverridesDetection(t *testing.T) {
	data := []byte("a,b\n1,2\n")
	snap, err := Decode(data, ',')
	require.NoError(t, err)
	require.Equal(t, ',', snap.Delimiter)
	require.Equal(t, "2", snap.Rows[0]["b"])
}

func TestDecodeToleratesRaggedRows(t *testing.T) {
	data := []byte("a;b;c\n1;2\n1;2;3;4\n")
	snap, err := Decode(data, 0)
	require.NoError(t, err)
	// Short row pads with empty strings, long row drops the extras.
	require.Equal(t, "", snap.Rows[0]["c"])
	require.Equal(t, "3", snap.Rows[1]["c"])
}

func TestDecodeSkipsLeadingBlankLines(t *testing.T) {
	data := []byte("\n;;\nJednotka;Vlastník\n1;Novák\n")
	snap, err := Decode(data, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"Jednotka", "Vlastník"}, snap.Headers)
	require.Equal(t, 1, snap.Total)
}

func TestDecodeNoHeader(t *testing.T) {
	_, err := Decode([]byte(""), 0)
	require.ErrorIs(t, err, ErrNoHeader)

	_, err = Decode([]byte("\n\n"), 0)
	require.ErrorIs(t, err, ErrNoHeader)
}

func TestDecodeSampleCapped(t *testing.T) {
	data := []byte("a\n1\n2\n3\n4\n5\n6\n7\n")
	snap, err := Decode(data, 0)
	require.NoError(t, err)
	require.Equal(t, 7, snap.Total)
	require.Len(t, snap.Sample, SampleSize)
	require.Equal(t, "1", snap.Sample[0]["a"])
}

func TestDecodeSubstitutesInvalidUTF8(t *testing.T) {
	data := []byte("a;b\nNov\xffk;1\n")
	snap, err := Decode(data, 0)
	require.NoError(t, err)
	require.Contains(t, snap.Rows[0]["a"], "�")
}

func TestDetectSourceFormat(t *testing.T) {
	require.Equal(t, SourceFormatSousede, DetectSourceFormat("export ze sousede.cz"))
	require.Equal(t, SourceFormatSousede, DetectSourceFormat("Katastralni uzemi;..."))
	require.Equal(t, SourceFormatInternal, DetectSourceFormat("Jednotka;Vlastník"))
}
