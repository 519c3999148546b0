package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/leapstack-labs/devbench/pkg/core"
)

// WriteCSV writes the table with a single header row.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = formatCell(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a table written by WriteCSV. Column types are inferred the
// same way as for workbook sheets.
func ReadCSV(r io.Reader, p core.Phase) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	columns, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("csv for phase %s has no header row", p.Short())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	if len(columns) > 0 {
		// Some editors prepend a byte order mark.
		columns[0] = trimBOM(columns[0])
	}

	var raw [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		raw = append(raw, rec)
	}
	return newTable(p, columns, raw), nil
}

func trimBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}
