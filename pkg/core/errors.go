package core

import (
	"fmt"
	"strings"
)

// ConfigError reports a missing or unusable external location.
type ConfigError struct {
	Key    string // configuration key or environment variable
	Path   string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("config")
	if e.Key != "" {
		fmt.Fprintf(&b, " %s", e.Key)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " (%s)", e.Path)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// HeaderError reports a spreadsheet column whose header cannot produce a
// usable field name.
type HeaderError struct {
	Sheet  string
	Column int // zero-based index after the leading column is dropped
	Levels []string
	Reason string
}

func (e *HeaderError) Error() string {
	where := fmt.Sprintf("column %d", e.Column)
	if e.Sheet != "" {
		where = fmt.Sprintf("sheet %q %s", e.Sheet, where)
	}
	return fmt.Sprintf("header %s %q: %s", where, e.Levels, e.Reason)
}

// ValidationError reports a record that does not conform to its phase schema.
type ValidationError struct {
	Phase  string
	Source string // file name or other origin, if known
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("validation failed")
	if e.Phase != "" {
		fmt.Fprintf(&b, " for phase %s", e.Phase)
	}
	if e.Source != "" {
		fmt.Fprintf(&b, " (%s)", e.Source)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ConstraintError reports a fact row that violates referential or
// primary-key integrity.
type ConstraintError struct {
	Table  string
	Key    []string
	Reason string
	Err    error
}

func (e *ConstraintError) Error() string {
	msg := fmt.Sprintf("constraint violation in %s", e.Table)
	if len(e.Key) > 0 {
		msg += fmt.Sprintf(" for key (%s)", strings.Join(e.Key, ", "))
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// UnknownPhaseError is returned for a phase label outside the closed set.
type UnknownPhaseError struct {
	Label string
}

func (e *UnknownPhaseError) Error() string {
	known := make([]string, 0, len(phaseTable))
	for _, p := range Phases() {
		known = append(known, p.Short())
	}
	return fmt.Sprintf("unknown phase %q\nKnown phases: %s", e.Label, strings.Join(known, ", "))
}
