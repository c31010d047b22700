package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// xlsxMagic is the ZIP container signature shared by .xlsx files.
var xlsxMagic = []byte{0x50, 0x4B, 0x03, 0x04}

// IsXLSX reports whether the payload looks like an Excel workbook.
func IsXLSX(data []byte) bool {
	return bytes.HasPrefix(data, xlsxMagic)
}

// DecodeXLSX parses the first sheet of an Excel workbook into a Snapshot
// with the same header/row contract as Decode.
func DecodeXLSX(data []byte) (*Snapshot, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoHeader
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}

	var headers []string
	start := -1
	for i, rec := range rows {
		if !recordEmpty(rec) {
			headers = trimAll(rec)
			start = i + 1
			break
		}
	}
	if headers == nil {
		return nil, ErrNoHeader
	}

	var content strings.Builder
	for _, rec := range rows {
		content.WriteString(strings.Join(rec, " "))
		content.WriteString("\n")
	}

	snap := &Snapshot{
		Headers:      headers,
		SourceFormat: DetectSourceFormat(content.String()),
	}
	for _, rec := range rows[start:] {
		if recordEmpty(rec) {
			continue
		}
		snap.append(recordToRow(headers, rec))
	}
	return snap, nil
}
