package sheet

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/devbench/pkg/core"
)

func TestNormalizeLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "ページ数", "ページ数"},
		{"trim", "  工数 ", "工数"},
		{"line break", "作成\n工数", "作成工数"},
		{"carriage return", "作成\r\n工数", "作成工数"},
		{"footnote marker", "機能数*", "機能数"},
		{"full width ascii", "ＫＬＯＣ", "KLOC"},
		{"half width katakana", "ﾍﾟｰｼﾞ数", "ページ数"},
		{"placeholder", "Unnamed: 3_level_1", ""},
		{"empty", "", ""},
		{"vocabulary", "合計/平均", core.FieldCalcMethod},
		{"full width vocabulary", "合計／平均", core.FieldCalcMethod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeLevel(tt.input))
		})
	}
}

func TestJoinHeader(t *testing.T) {
	name, err := JoinHeader([]string{"規模", "ページ数", ""})
	require.NoError(t, err)
	assert.Equal(t, "規模_ページ数", name)

	name, err = JoinHeader([]string{"合計/平均", "", "Unnamed: 2_level_2"})
	require.NoError(t, err)
	assert.Equal(t, core.FieldCalcMethod, name)
}

func TestJoinHeader_AllBlank(t *testing.T) {
	_, err := JoinHeader([]string{"", "Unnamed: 4_level_1", " * "})

	var he *core.HeaderError
	require.True(t, errors.As(err, &he))
	assert.Contains(t, he.Reason, "empty")
}

func TestJoinHeader_TooManySeparators(t *testing.T) {
	_, err := JoinHeader([]string{"a_b", "c_d", "e"})

	var he *core.HeaderError
	require.True(t, errors.As(err, &he))
	assert.Contains(t, he.Reason, "separators")

	// Within the limit is fine.
	name, err := JoinHeader([]string{"a_b", "", "c"})
	require.NoError(t, err)
	assert.Equal(t, "a_b_c", name)
}

func TestFillHeaderLevels(t *testing.T) {
	rows := [][]string{
		{"", "A", "", "", "B", ""},
		{"", "x", "y", "", "", "z"},
		{"", "", "", "", "", ""},
	}
	fillHeaderLevels(rows)

	assert.Equal(t, []string{"", "A", "A", "A", "B", "B"}, rows[0])
	// Position 4 starts a new parent group, so it does not inherit "y".
	assert.Equal(t, []string{"", "x", "y", "y", "", "z"}, rows[1])
	// The last level is never filled.
	assert.Equal(t, []string{"", "", "", "", "", ""}, rows[2])
}

func TestFlattenHeader(t *testing.T) {
	rows := [][]string{
		{"No", "システム", "合計/平均", "分類", "規模", "", "工数", ""},
		{"", "", "", "", "ページ数", "機能数*", "作成\n工数", "レビュー工数"},
		{"", "", "", "", "", "", "", "Unnamed: 7_level_2"},
	}

	names, err := FlattenHeader("要件定義", rows, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"システム", "算出方法", "分類",
		"規模_ページ数", "規模_機能数", "工数_作成工数", "工数_レビュー工数",
	}, names)
}

func TestFlattenHeader_RaggedRows(t *testing.T) {
	rows := [][]string{
		{"No", "システム", "規模"},
		{"", "", "ページ数"},
		{},
	}
	names, err := FlattenHeader("ST", rows, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"システム", "規模_ページ数"}, names)
}

func TestFlattenHeader_BlankColumn(t *testing.T) {
	rows := [][]string{
		{"", "", "システム"},
		{"", "", ""},
		{"", "", ""},
	}
	_, err := FlattenHeader("結テ", rows, 1)

	var he *core.HeaderError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "結テ", he.Sheet)
	assert.Equal(t, 0, he.Column)
}

func TestFlattenHeader_Duplicate(t *testing.T) {
	rows := [][]string{
		{"No", "システム", "工数", "工数"},
		{"", "", "", ""},
		{"", "", "", ""},
	}
	_, err := FlattenHeader("基本設計", rows, 1)

	var he *core.HeaderError
	require.True(t, errors.As(err, &he))
	assert.Contains(t, he.Reason, "duplicate")
	assert.Equal(t, 2, he.Column)
}
