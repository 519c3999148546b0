package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/leapstack-labs/devbench/pkg/core"
)

// Sheet describes one phase sheet of a fixture workbook: a title row, the
// header levels and the data rows, all including the leading index column.
type Sheet struct {
	Name   string
	Title  string
	Header [][]any
	Rows   [][]any
}

// SampleHeader is a three-level header with a merged group cell, a
// placeholder, a footnote marker, an embedded line break and the spreadsheet
// spelling of the calculation method column.
func SampleHeader() [][]any {
	return [][]any{
		{"No", "システム", "合計/平均", "分類", "規模", nil, "工数", nil},
		{nil, nil, nil, nil, "ページ数", "機能数*", "作成\n工数", "レビュー工数"},
		{nil, nil, nil, nil, nil, nil, nil, "Unnamed: 7_level_2"},
	}
}

// SampleColumns are the flattened names of SampleHeader.
func SampleColumns() []string {
	return []string{
		core.FieldSystem, core.FieldCalcMethod, core.FieldClassification,
		"規模_ページ数", "規模_機能数", "工数_作成工数", "工数_レビュー工数",
	}
}

// SampleRows are data rows matching SampleHeader. System-1 reports a page
// count of 3355 as a total over all work.
func SampleRows() [][]any {
	return [][]any{
		{1, "System-1", "合計", "全体", 3355, 12, 100.5, nil},
		{2, "System-2", "合計", "全体", 1200, nil, 80, 5},
		{3, "System-3", "平均", "新規", 410.25, 3, nil, 2.5},
		{4, "System-1", "平均", "全体", 1677.5, 6, 50.25, nil},
	}
}

// SampleSheet returns the sample layout for a phase.
func SampleSheet(p core.Phase) Sheet {
	return Sheet{
		Name:   p.Short(),
		Title:  p.Long() + " 実績",
		Header: SampleHeader(),
		Rows:   SampleRows(),
	}
}

// SampleSheets returns the sample layout for every phase.
func SampleSheets() []Sheet {
	sheets := make([]Sheet, 0, len(core.Phases()))
	for _, p := range core.Phases() {
		sheets = append(sheets, SampleSheet(p))
	}
	return sheets
}

// WriteWorkbook writes the sheets to an xlsx file in dir and returns its path.
func WriteWorkbook(t testing.TB, dir string, sheets ...Sheet) string {
	t.Helper()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for i, s := range sheets {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", s.Name))
		} else {
			_, err := f.NewSheet(s.Name)
			require.NoError(t, err)
		}

		rows := make([][]any, 0, 1+len(s.Header)+len(s.Rows))
		rows = append(rows, []any{s.Title})
		rows = append(rows, s.Header...)
		rows = append(rows, s.Rows...)
		for r, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			values := make([]any, len(row))
			for c, v := range row {
				if v == nil {
					v = ""
				}
				values[c] = v
			}
			require.NoError(t, f.SetSheetRow(s.Name, cell, &values))
		}
	}

	path := filepath.Join(dir, "metrics.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}
