package sheet

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/leapstack-labs/devbench/pkg/core"
)

// titleRows are skipped above the header block of every phase sheet.
const titleRows = 1

// indexColumns are dropped from the left of every phase sheet.
const indexColumns = 1

// ErrSheetNotFound is returned when the workbook lacks a phase sheet.
var ErrSheetNotFound = errors.New("sheet not found")

// Workbook reads phase sheets from a metrics workbook.
type Workbook struct {
	f *excelize.File
}

// OpenWorkbook opens a workbook file.
func OpenWorkbook(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	return &Workbook{f: f}, nil
}

// ReadWorkbook opens a workbook from a stream.
func ReadWorkbook(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook: %w", err)
	}
	return &Workbook{f: f}, nil
}

// Close releases the workbook.
func (w *Workbook) Close() error {
	return w.f.Close()
}

// Sheets lists the sheet names in workbook order.
func (w *Workbook) Sheets() []string {
	return w.f.GetSheetList()
}

// Phase reads and flattens the sheet named by the phase's short label.
func (w *Workbook) Phase(p core.Phase) (*Table, error) {
	name := p.Short()
	if idx, err := w.f.GetSheetIndex(name); err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
	}
	rows, err := w.f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
	}
	if len(rows) < titleRows+HeaderLevels {
		return nil, &core.HeaderError{
			Sheet:  name,
			Reason: fmt.Sprintf("expected %d header rows after %d title row, got %d rows", HeaderLevels, titleRows, len(rows)),
		}
	}

	header := rows[titleRows : titleRows+HeaderLevels]
	columns, err := FlattenHeader(name, header, indexColumns)
	if err != nil {
		return nil, err
	}

	data := rows[titleRows+HeaderLevels:]
	raw := make([][]string, 0, len(data))
	for _, cells := range data {
		if len(cells) <= indexColumns {
			raw = append(raw, nil)
			continue
		}
		raw = append(raw, cells[indexColumns:])
	}
	return newTable(p, columns, raw), nil
}

// Phases reads every requested phase, or all phases when none are given.
func (w *Workbook) Phases(phases ...core.Phase) ([]*Table, error) {
	if len(phases) == 0 {
		phases = core.Phases()
	}
	tables := make([]*Table, 0, len(phases))
	for _, p := range phases {
		t, err := w.Phase(p)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}
