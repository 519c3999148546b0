package sheet

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/leapstack-labs/devbench/pkg/core"
)

// HeaderLevels is the number of header rows below the skipped title row.
const HeaderLevels = 3

// Separator joins non-empty header levels into one field name.
const Separator = "_"

// placeholderMarker appears in spreadsheet exports for header cells that
// had no text of their own.
const placeholderMarker = "Unnamed"

// NormalizeLevel normalizes one header cell: placeholders become empty,
// text is NFKC-folded and trimmed, line breaks, other control characters and
// the footnote marker '*' are removed, and the vocabulary fix-ups are applied.
func NormalizeLevel(s string) string {
	if strings.Contains(s, placeholderMarker) {
		return ""
	}
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		if r == '*' || unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	return core.CanonicalHeader(s)
}

// JoinHeader flattens the header levels of one column into a field name.
// Levels are normalized first; empty levels contribute nothing.
func JoinHeader(levels []string) (string, error) {
	parts := make([]string, 0, len(levels))
	for _, l := range levels {
		if n := NormalizeLevel(l); n != "" {
			parts = append(parts, n)
		}
	}
	if len(parts) == 0 {
		return "", &core.HeaderError{Levels: levels, Reason: "all header levels are empty"}
	}
	name := strings.Join(parts, Separator)
	if limit := len(levels) - 1; strings.Count(name, Separator) > limit {
		return "", &core.HeaderError{
			Levels: levels,
			Reason: fmt.Sprintf("%q has more than %d %q separators", name, limit, Separator),
		}
	}
	return name, nil
}

// fillHeaderLevels forward-fills blank header cells left by merged ranges.
// Every level but the last is filled from its left neighbour, but only
// where no parent level had its own text at that position, so a new parent
// group never inherits the previous group's children.
func fillHeaderLevels(rows [][]string) {
	if len(rows) == 0 {
		return
	}
	width := len(rows[0])
	control := make([]bool, width)
	for i := range control {
		control[i] = true
	}
	for _, row := range rows[:len(rows)-1] {
		if len(row) == 0 {
			continue
		}
		last := row[0]
		for i := 1; i < len(row) && i < width; i++ {
			if !control[i] {
				last = row[i]
			}
			if strings.TrimSpace(row[i]) == "" {
				row[i] = last
			} else {
				control[i] = false
				last = row[i]
			}
		}
	}
}

// FlattenHeader turns header rows (one per level, equal width) into field
// names. The first skip columns are filled like the rest but not returned.
func FlattenHeader(sheetName string, rows [][]string, skip int) ([]string, error) {
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	grid := make([][]string, len(rows))
	for i, r := range rows {
		grid[i] = make([]string, width)
		copy(grid[i], r)
	}
	fillHeaderLevels(grid)

	names := make([]string, 0, max(width-skip, 0))
	seen := make(map[string]int, width)
	for col := skip; col < width; col++ {
		levels := make([]string, len(grid))
		for lvl := range grid {
			levels[lvl] = grid[lvl][col]
		}
		name, err := JoinHeader(levels)
		if err != nil {
			var he *core.HeaderError
			if errors.As(err, &he) {
				he.Sheet = sheetName
				he.Column = col - skip
			}
			return nil, err
		}
		if prev, dup := seen[name]; dup {
			return nil, &core.HeaderError{
				Sheet:  sheetName,
				Column: col - skip,
				Levels: levels,
				Reason: fmt.Sprintf("duplicate field name %q (also column %d)", name, prev),
			}
		}
		seen[name] = col - skip
		names = append(names, name)
	}
	return names, nil
}
