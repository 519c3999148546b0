package core

// Canonical field names. They are data, not identifiers: they appear verbatim
// as record keys, schema properties and column names.
const (
	FieldPhase          = "フェーズ"
	FieldSystem         = "システム"
	FieldCalcMethod     = "算出方法"
	FieldClassification = "分類"
	FieldDescription    = "説明"
)

// rawCalcMethodHeader is the spreadsheet spelling of the calculation method
// header ("total/average").
const rawCalcMethodHeader = "合計/平均"

// CanonicalHeader applies the header vocabulary fix-ups to one normalized
// header level.
func CanonicalHeader(name string) string {
	if name == rawCalcMethodHeader {
		return FieldCalcMethod
	}
	return name
}

// FieldKind classifies a field of a phase table.
type FieldKind int

// Field kinds.
const (
	KindMetric FieldKind = iota
	KindPhase
	KindIdentifier
	KindCategorical
)

func (k FieldKind) String() string {
	switch k {
	case KindPhase:
		return "phase"
	case KindIdentifier:
		return "identifier"
	case KindCategorical:
		return "categorical"
	default:
		return "metric"
	}
}

// KindOf returns the kind of a field by name. Anything that is not the
// phase tag, the identifier or a categorical field is a metric.
func KindOf(name string) FieldKind {
	switch name {
	case FieldPhase:
		return KindPhase
	case FieldSystem:
		return KindIdentifier
	case FieldCalcMethod, FieldClassification:
		return KindCategorical
	default:
		return KindMetric
	}
}

// IsStringField reports whether values of the field are always strings.
func IsStringField(name string) bool {
	return KindOf(name) != KindMetric
}

// Vocabulary returns the closed set of allowed values of a categorical field,
// or nil for any other field.
func Vocabulary(name string) []string {
	switch name {
	case FieldCalcMethod:
		return CalcMethodLabels()
	case FieldClassification:
		return ClassificationLabels()
	default:
		return nil
	}
}

// HousekeepingFields are dropped before presenting a comparison.
var HousekeepingFields = []string{FieldCalcMethod, FieldClassification}
