// Package compare builds on the query engine for interactive callers: it
// holds the loaded candidate, excludes the candidate's own system on
// request, pivots matches for display and assembles the review context.
package compare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/leapstack-labs/devbench/internal/query"
	"github.com/leapstack-labs/devbench/internal/reference"
	"github.com/leapstack-labs/devbench/pkg/core"
)

// ErrNoData means a comparison found nothing to show. Interactive callers
// report it as a warning.
var ErrNoData = errors.New("no data found")

// ErrNoCandidate is returned when a session has nothing loaded.
var ErrNoCandidate = errors.New("no candidate loaded")

// Querier runs comparison queries. *query.Engine implements it.
type Querier interface {
	Query(ctx context.Context, candidate *core.Record, opts query.Options) (*query.Result, error)
}

// Options tune a comparison.
type Options struct {
	// ExcludeSelf drops matches of the candidate's own system.
	ExcludeSelf bool
	// KeepPhase keeps the phase tag in the returned query record.
	KeepPhase bool
}

// Comparison is a query result prepared for display.
type Comparison struct {
	Phase     core.Phase         `json:"-"`
	Query     *core.Record       `json:"query"`
	Matches   []*core.Record     `json:"matches"`
	Pivot     *Pivot             `json:"pivot"`
	Reference reference.Document `json:"reference,omitempty"`
}

// System returns the candidate's system.
func (c *Comparison) System() string {
	s, _ := c.Query.String(core.FieldSystem)
	return s
}

// Chart returns the series of one metric with the candidate's system first.
func (c *Comparison) Chart(metric string) (*Series, error) {
	return c.Pivot.Chart(metric, c.System())
}

// Compare queries the candidate's matches and pivots them. A reference
// document is attached when refs has one for the phase. ErrNoData is
// returned when nothing matches.
func Compare(ctx context.Context, q Querier, refs *reference.Library, candidate *core.Record, opts Options) (*Comparison, error) {
	res, err := q.Query(ctx, candidate, query.Options{KeepPhase: opts.KeepPhase})
	if err != nil {
		return nil, err
	}

	matches := res.Matches
	if opts.ExcludeSelf {
		matches = excludeSystem(matches, systemOf(res.Query))
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w for %s in phase %s", ErrNoData, systemOf(res.Query), res.Phase.Short())
	}

	c := &Comparison{
		Phase:   res.Phase,
		Query:   res.Query,
		Matches: matches,
		Pivot:   NewPivot(res.Query, matches),
	}
	if refs != nil {
		doc, err := refs.Lookup(res.Phase)
		var cfgErr *core.ConfigError
		switch {
		case err == nil:
			c.Reference = doc
		case !errors.As(err, &cfgErr):
			return nil, err
		}
	}
	return c, nil
}

// ReviewContext is what a reviewer is given about a candidate: the
// candidate with its phase tag, the past records of other systems measured
// the same way, and the phase's reference statistics.
type ReviewContext struct {
	Phase     core.Phase         `json:"-"`
	Current   *core.Record       `json:"current"`
	Past      []*core.Record     `json:"past"`
	Reference reference.Document `json:"reference"`
}

// Review assembles the review context of a candidate. An empty past is
// fine, so a first-of-its-kind system can still be reviewed; a missing
// reference document is a ConfigError.
func Review(ctx context.Context, q Querier, refs *reference.Library, candidate *core.Record) (*ReviewContext, error) {
	if refs == nil {
		return nil, &core.ConfigError{Key: "reference_dir", Reason: "no reference library configured"}
	}
	res, err := q.Query(ctx, candidate, query.Options{KeepPhase: true})
	if err != nil {
		return nil, err
	}
	doc, err := refs.Lookup(res.Phase)
	if err != nil {
		return nil, err
	}
	past := excludeSystem(res.Matches, systemOf(res.Query))
	if past == nil {
		past = []*core.Record{}
	}
	return &ReviewContext{Phase: res.Phase, Current: res.Query, Past: past, Reference: doc}, nil
}

// MarshalJSON includes the phase short label.
func (c *Comparison) MarshalJSON() ([]byte, error) {
	type plain Comparison
	return json.Marshal(struct {
		Phase string `json:"phase"`
		*plain
	}{Phase: c.Phase.Short(), plain: (*plain)(c)})
}

// MarshalJSON includes the phase short label.
func (r *ReviewContext) MarshalJSON() ([]byte, error) {
	type plain ReviewContext
	return json.Marshal(struct {
		Phase string `json:"phase"`
		*plain
	}{Phase: r.Phase.Short(), plain: (*plain)(r)})
}

func systemOf(r *core.Record) string {
	s, _ := r.String(core.FieldSystem)
	return s
}

func excludeSystem(records []*core.Record, system string) []*core.Record {
	var out []*core.Record
	for _, r := range records {
		if systemOf(r) != system {
			out = append(out, r)
		}
	}
	return out
}
