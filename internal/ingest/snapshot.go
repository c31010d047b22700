package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

// ErrNoHeader is returned when a snapshot contains no header row at all.
var ErrNoHeader = errors.New("snapshot has no header row")

// SampleSize is how many leading rows are kept for operator preview.
const SampleSize = 5

// Source format tags recorded on a session.
const (
	SourceFormatSousede  = "sousede.cz"
	SourceFormatInternal = "internal"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Row is one snapshot row keyed by header. Values for short rows are
// empty strings; cells beyond the header width are dropped.
type Row map[string]string

// Snapshot is a decoded external ownership snapshot. It has no knowledge
// of ownership semantics — headers and values are opaque strings until
// the column mapper assigns roles.
type Snapshot struct {
	Headers      []string
	Rows         []Row
	Sample       []Row // first SampleSize rows, for preview before commit
	Total        int
	Delimiter    rune // 0 for non-delimited sources (xlsx)
	SourceFormat string
}

// Decode parses raw delimited bytes into a Snapshot. A UTF-8 BOM is
// stripped, the delimiter is auto-detected unless hinted, and undecodable
// bytes are substituted rather than failing the import. The first
// non-empty row is the header row; its absence is the only fatal input
// condition.
func Decode(data []byte, delimiterHint rune) (*Snapshot, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	text := strings.ToValidUTF8(string(data), "�")

	delim := delimiterHint
	if delim == 0 {
		delim = DetectDelimiter(text)
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1 // ragged rows are tolerated
	r.LazyQuotes = true

	var headers []string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return nil, ErrNoHeader
		}
		if err != nil {
			return nil, err
		}
		if !recordEmpty(rec) {
			headers = trimAll(rec)
			break
		}
	}

	snap := &Snapshot{
		Headers:      headers,
		Delimiter:    delim,
		SourceFormat: DetectSourceFormat(text),
	}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		snap.append(recordToRow(headers, rec))
	}
	return snap, nil
}

func (s *Snapshot) append(row Row) {
	s.Rows = append(s.Rows, row)
	s.Total++
	if len(s.Sample) < SampleSize {
		s.Sample = append(s.Sample, row)
	}
}

// DetectDelimiter picks comma or semicolon by frequency; semicolon wins
// ties (the dominant convention in Czech registry exports).
func DetectDelimiter(text string) rune {
	if strings.Count(text, ",") > strings.Count(text, ";") {
		return ','
	}
	return ';'
}

// DetectSourceFormat sniffs the snapshot provenance from its content.
func DetectSourceFormat(text string) string {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "sousede") || strings.Contains(lower, "katastral") {
		return SourceFormatSousede
	}
	return SourceFormatInternal
}

func recordToRow(headers, rec []string) Row {
	row := make(Row, len(headers))
	for i, h := range headers {
		if i < len(rec) {
			row[h] = rec[i]
		} else {
			row[h] = ""
		}
	}
	return row
}

func recordEmpty(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func trimAll(rec []string) []string {
	out := make([]string, len(rec))
	for i, f := range rec {
		out[i] = strings.TrimSpace(f)
	}
	return out
}
