// Package csvchunk parses forecast CSV files and cuts their rows into
// overlapping windows that fit a language model's input budget.
package csvchunk

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrEmptyCSV      = errors.New("CSV parsing failed or file is empty")
	ErrInvalidSizing = errors.New("invalid chunk sizing")
)

// Table is a parsed CSV file. Every row has exactly len(Header) fields.
type Table struct {
	Header []string
	Rows   [][]string
}

// Parse reads a CSV with a header row. Blank lines are skipped; short rows are
// padded and long rows truncated to the header width.
func Parse(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyCSV
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmptyCSV, err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	table := &Table{Header: header}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmptyCSV, err)
		}
		if isBlank(record) {
			continue
		}
		table.Rows = append(table.Rows, fit(record, len(header)))
	}

	if len(table.Rows) == 0 {
		return nil, ErrEmptyCSV
	}
	return table, nil
}

// ParseBytes is Parse over an in-memory file.
func ParseBytes(data []byte) (*Table, error) {
	return Parse(bytes.NewReader(data))
}

// Encode renders the header plus the chunk's rows back to CSV text.
func (t *Table) Encode(c Chunk) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if err := w.WriteAll(c.Rows); err != nil {
		return nil, fmt.Errorf("failed to write chunk %d: %w", c.Index, err)
	}
	return buf.Bytes(), nil
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func fit(record []string, width int) []string {
	if len(record) == width {
		return record
	}
	out := make([]string, width)
	copy(out, record)
	return out
}
