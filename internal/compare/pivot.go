package compare

import (
	"fmt"

	"github.com/leapstack-labs/devbench/pkg/core"
)

// Pivot lays matches out for reading: one column per system, one row per
// metric of the query, housekeeping fields dropped.
type Pivot struct {
	Systems []string   `json:"systems"`
	Rows    []PivotRow `json:"rows"`
}

// PivotRow holds one metric's value for every system column; nil where the
// system did not report it.
type PivotRow struct {
	Metric string `json:"metric"`
	Values []any  `json:"values"`
}

// NewPivot builds the pivot of matches for the metrics of query, in the
// query's field order. A system matched more than once (when the query has
// no classification) gets one column per classification.
func NewPivot(query *core.Record, matches []*core.Record) *Pivot {
	p := &Pivot{Systems: make([]string, 0, len(matches))}

	counts := make(map[string]int, len(matches))
	for _, m := range matches {
		name, _ := m.String(core.FieldSystem)
		counts[name]++
	}
	for _, m := range matches {
		name, _ := m.String(core.FieldSystem)
		if counts[name] > 1 {
			class, _ := m.String(core.FieldClassification)
			name = fmt.Sprintf("%s (%s)", name, class)
		}
		p.Systems = append(p.Systems, name)
	}

	for _, metric := range Metrics(query) {
		row := PivotRow{Metric: metric, Values: make([]any, len(matches))}
		for i, m := range matches {
			row.Values[i], _ = m.Get(metric)
		}
		p.Rows = append(p.Rows, row)
	}
	return p
}

// Metrics returns the metric fields of a record in order: everything but
// the phase tag, the identifier and the housekeeping fields.
func Metrics(r *core.Record) []string {
	var out []string
	for _, k := range r.Keys() {
		if core.KindOf(k) == core.KindMetric {
			out = append(out, k)
		}
	}
	return out
}

// Row returns the row of a metric.
func (p *Pivot) Row(metric string) (PivotRow, bool) {
	for _, r := range p.Rows {
		if r.Metric == metric {
			return r, true
		}
	}
	return PivotRow{}, false
}

// Point is one bar of a chart.
type Point struct {
	System  string   `json:"system"`
	Value   *float64 `json:"value"`
	Current bool     `json:"current"`
}

// Series is one metric across systems, the current system first.
type Series struct {
	Metric string  `json:"metric"`
	Points []Point `json:"points"`
}

// Chart returns the series of one metric with the current system first and
// the other systems after it in column order. ErrNoData is returned when
// the metric or the current system is not in the pivot.
func (p *Pivot) Chart(metric, current string) (*Series, error) {
	row, ok := p.Row(metric)
	if !ok {
		return nil, fmt.Errorf("%w: metric %q", ErrNoData, metric)
	}
	at := -1
	for i, s := range p.Systems {
		if s == current {
			at = i
			break
		}
	}
	if at < 0 {
		return nil, fmt.Errorf("%w: current system %q", ErrNoData, current)
	}

	s := &Series{Metric: metric, Points: make([]Point, 0, len(p.Systems))}
	s.Points = append(s.Points, Point{System: current, Value: number(row.Values[at]), Current: true})
	for i, name := range p.Systems {
		if i == at {
			continue
		}
		s.Points = append(s.Points, Point{System: name, Value: number(row.Values[i])})
	}
	return s, nil
}

func number(v any) *float64 {
	if f, ok := v.(float64); ok {
		return &f
	}
	return nil
}
