// Package sheet flattens phase sheets of the metrics workbook into tables
// with canonical field names, and moves those tables through CSV.
package sheet

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/leapstack-labs/devbench/pkg/core"
)

// Table is one flattened phase sheet. Cell values are string, float64 or
// nil for an empty cell.
type Table struct {
	Phase   core.Phase
	Columns []string
	Rows    [][]any
}

// ColumnIndex returns the position of a column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Numeric reports whether every non-empty cell of column i is a number.
func (t *Table) Numeric(i int) bool {
	for _, row := range t.Rows {
		if i >= len(row) {
			continue
		}
		switch row[i].(type) {
		case nil, float64:
		default:
			return false
		}
	}
	return true
}

// naTokens are the cell texts that mean "no value", as spreadsheet exports
// and pandas write them.
var naTokens = map[string]bool{
	"#N/A": true, "#N/A N/A": true, "#NA": true, "-1.#IND": true, "-1.#QNAN": true,
	"-NaN": true, "-nan": true, "1.#IND": true, "1.#QNAN": true, "<NA>": true,
	"N/A": true, "NA": true, "NULL": true, "NaN": true, "None": true,
	"n/a": true, "nan": true, "null": true,
}

// cellText returns the trimmed text of cell i, or "" when it is absent or
// holds a missing-value marker.
func cellText(cells []string, i int) string {
	if i >= len(cells) {
		return ""
	}
	text := strings.TrimSpace(cells[i])
	if naTokens[text] {
		return ""
	}
	return text
}

// parseNumber parses a numeric cell. Infinities and NaN count as missing.
func parseNumber(text string) (f float64, ok bool, err error) {
	f, err = strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, nil
	}
	return f, true, nil
}

// newTable builds a table from raw cell text. Identifier and categorical
// columns stay text; any other column becomes numeric when all its
// non-empty cells parse as numbers. Missing-value markers and non-finite
// numbers become nil. Calculation method values are canonicalized and
// fully empty rows are dropped.
func newTable(phase core.Phase, columns []string, raw [][]string) *Table {
	t := &Table{Phase: phase, Columns: columns}

	numeric := make([]bool, len(columns))
	for i, name := range columns {
		numeric[i] = !core.IsStringField(name) && columnParses(raw, i)
	}

	for _, cells := range raw {
		row := make([]any, len(columns))
		empty := true
		for i, name := range columns {
			text := cellText(cells, i)
			if text == "" {
				continue
			}
			if numeric[i] {
				f, ok, _ := parseNumber(text)
				if !ok {
					continue
				}
				row[i] = f
				empty = false
				continue
			}
			empty = false
			if name == core.FieldCalcMethod {
				row[i] = core.CanonicalCalcMethod(text)
			} else {
				row[i] = text
			}
		}
		if !empty {
			t.Rows = append(t.Rows, row)
		}
	}
	return t
}

func columnParses(raw [][]string, i int) bool {
	for _, cells := range raw {
		text := cellText(cells, i)
		if text == "" {
			continue
		}
		if _, _, err := parseNumber(text); err != nil {
			return false
		}
	}
	return true
}

// formatCell renders a cell for CSV. Numbers keep ten decimals.
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', 10, 64)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
