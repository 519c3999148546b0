package core

import "strings"

// =============================================================================
// Phase
// =============================================================================

// Phase is one stage of the development lifecycle. Every table, schema and
// record is partitioned by phase.
type Phase int

// Phases in lifecycle order.
const (
	PhaseRequirements Phase = iota
	PhaseBasicDesign
	PhaseDetailedDesign
	PhaseImplementation
	PhaseIntegrationTest
	PhaseSystemTest
)

type phaseInfo struct {
	code  string // ASCII-safe storage identifier
	name  string
	short string
	long  string
}

var phaseTable = [...]phaseInfo{
	PhaseRequirements:    {"RD", "requirements definition", "要件定義", "要件定義"},
	PhaseBasicDesign:     {"DES1", "basic design", "基本設計", "基本設計"},
	PhaseDetailedDesign:  {"DES2", "detailed design", "詳細設計", "詳細設計"},
	PhaseImplementation:  {"IMPL", "implementation/unit test", "実装・単テ", "実装・単体テスト"},
	PhaseIntegrationTest: {"INT", "integration test", "結テ", "結合テスト"},
	PhaseSystemTest:      {"ST", "system test", "ST", "システムテスト"},
}

var (
	phasesByShort = make(map[string]Phase, len(phaseTable))
	phasesByCode  = make(map[string]Phase, len(phaseTable))
)

func init() {
	for i := range phaseTable {
		p := Phase(i)
		phasesByShort[p.Short()] = p
		phasesByCode[p.Code()] = p
	}
}

// Phases returns all phases in lifecycle order.
func Phases() []Phase {
	out := make([]Phase, len(phaseTable))
	for i := range phaseTable {
		out[i] = Phase(i)
	}
	return out
}

// Valid reports whether p is one of the defined phases.
func (p Phase) Valid() bool {
	return p >= 0 && int(p) < len(phaseTable)
}

// Code is the ASCII identifier used for table names (RD, DES1, ...).
func (p Phase) Code() string {
	if !p.Valid() {
		return ""
	}
	return phaseTable[p].code
}

// Name is the English name of the phase.
func (p Phase) Name() string {
	if !p.Valid() {
		return ""
	}
	return phaseTable[p].name
}

// Short is the short display label. It is also the value of the phase tag,
// the workbook sheet name and the file prefix of every intermediate artifact.
func (p Phase) Short() string {
	if !p.Valid() {
		return ""
	}
	return phaseTable[p].short
}

// Long is the long display label.
func (p Phase) Long() string {
	if !p.Valid() {
		return ""
	}
	return phaseTable[p].long
}

func (p Phase) String() string {
	return p.Code()
}

// PhaseFromLabel looks a phase up by its short label (the phase tag value).
func PhaseFromLabel(label string) (Phase, error) {
	if p, ok := phasesByShort[label]; ok {
		return p, nil
	}
	return 0, &UnknownPhaseError{Label: label}
}

// ParsePhase accepts a short label, a long label, an ASCII code (any case) or
// the English name. It is meant for user input such as CLI arguments.
func ParsePhase(s string) (Phase, error) {
	s = strings.TrimSpace(s)
	if p, ok := phasesByShort[s]; ok {
		return p, nil
	}
	if p, ok := phasesByCode[strings.ToUpper(s)]; ok {
		return p, nil
	}
	for _, p := range Phases() {
		if p.Long() == s || strings.EqualFold(p.Name(), s) {
			return p, nil
		}
	}
	return 0, &UnknownPhaseError{Label: s}
}

// =============================================================================
// CalcMethod
// =============================================================================

// CalcMethod describes how a metric was aggregated.
type CalcMethod int

// Calculation methods.
const (
	CalcSum CalcMethod = iota
	CalcAverage
	CalcMedian
)

var calcMethodTable = [...]struct{ name, label, abbrev string }{
	CalcSum:     {"sum", "合計値", "合計"},
	CalcAverage: {"average", "平均値", "平均"},
	CalcMedian:  {"median", "中央値", "中央"},
}

// CalcMethods returns all calculation methods.
func CalcMethods() []CalcMethod {
	return []CalcMethod{CalcSum, CalcAverage, CalcMedian}
}

// Name is the English name.
func (c CalcMethod) Name() string { return calcMethodTable[c].name }

// Label is the stored value of the calculation method field.
func (c CalcMethod) Label() string { return calcMethodTable[c].label }

func (c CalcMethod) String() string { return c.Name() }

// CalcMethodLabels returns the allowed values of the calculation method field.
func CalcMethodLabels() []string {
	out := make([]string, 0, len(calcMethodTable))
	for _, c := range CalcMethods() {
		out = append(out, c.Label())
	}
	return out
}

// CanonicalCalcMethod maps the abbreviated spreadsheet spelling (合計, 平均,
// 中央) to the canonical label. Other values are returned unchanged.
func CanonicalCalcMethod(v string) string {
	for _, c := range CalcMethods() {
		if v == calcMethodTable[c].abbrev {
			return c.Label()
		}
	}
	return v
}

// CalcMethodFromLabel looks up a calculation method by its stored label.
func CalcMethodFromLabel(label string) (CalcMethod, bool) {
	for _, c := range CalcMethods() {
		if c.Label() == label {
			return c, true
		}
	}
	return 0, false
}

// =============================================================================
// Classification
// =============================================================================

// Classification tells whether a metric covers all work items or only new
// or modified ones.
type Classification int

// Classifications.
const (
	ClassBoth Classification = iota
	ClassNew
	ClassModified
)

var classificationTable = [...]struct{ name, label string }{
	ClassBoth:     {"new and modified", "全体"},
	ClassNew:      {"new", "新規"},
	ClassModified: {"modified", "修正"},
}

// Classifications returns all classifications.
func Classifications() []Classification {
	return []Classification{ClassBoth, ClassNew, ClassModified}
}

// Name is the English name.
func (c Classification) Name() string { return classificationTable[c].name }

// Label is the stored value of the classification field.
func (c Classification) Label() string { return classificationTable[c].label }

func (c Classification) String() string { return c.Name() }

// ClassificationLabels returns the allowed values of the classification field.
func ClassificationLabels() []string {
	out := make([]string, 0, len(classificationTable))
	for _, c := range Classifications() {
		out = append(out, c.Label())
	}
	return out
}

// ClassificationFromLabel looks up a classification by its stored label.
func ClassificationFromLabel(label string) (Classification, bool) {
	for _, c := range Classifications() {
		if c.Label() == label {
			return c, true
		}
	}
	return 0, false
}
