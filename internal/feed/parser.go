package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/epimap/epi-signal-etl/internal/domain"
)

// Format selects the delimiter of a feed document.
type Format string

const (
	FormatCSV Format = "csv"
	FormatTSV Format = "tsv"
)

// Delimiter returns the record separator for the format.
func (f Format) Delimiter() rune {
	if f == FormatTSV {
		return '\t'
	}
	return ','
}

// ParseResult carries the parsed rows plus per-row drop diagnostics.
type ParseResult struct {
	Rows    []domain.RawRow
	Skipped int // malformed rows dropped at parse time
}

// ParseTable parses a header-row delimited text document into raw rows keyed
// by column label. Individual malformed rows (field-count mismatch, bad
// quoting) are skipped and counted, never fatal: upstream exports routinely
// contain a handful of broken lines. Only a missing or unreadable header
// fails the whole document.
func ParseTable(text string, format Format) (ParseResult, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = format.Delimiter()
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return ParseResult{}, fmt.Errorf("read feed header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var result ParseResult
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.Skipped++
			continue
		}
		if len(record) != len(header) {
			result.Skipped++
			continue
		}

		row := make(domain.RawRow, len(header))
		for i, col := range header {
			row[col] = record[i]
		}
		result.Rows = append(result.Rows, row)
	}

	return result, nil
}
