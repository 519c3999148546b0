// Package query answers comparison queries: given a candidate record, find
// every stored record of the same phase measured on the same basis.
package query

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/devbench/internal/schema"
	"github.com/leapstack-labs/devbench/internal/store"
	"github.com/leapstack-labs/devbench/pkg/core"
)

// Selector reads fact rows. *store.Store implements it.
type Selector interface {
	Select(ctx context.Context, p core.Phase, columns []string, f store.Filter) ([]*core.Record, error)
}

// Config configures an Engine.
type Config struct {
	Validator *schema.Validator
	Store     Selector
	Logger    *slog.Logger
}

// Engine validates candidates and selects their matches. It holds no
// per-query state and is safe for concurrent use.
type Engine struct {
	validator *schema.Validator
	store     Selector
	logger    *slog.Logger
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Validator == nil {
		return nil, fmt.Errorf("query engine needs a schema validator")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("query engine needs a store")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{validator: cfg.Validator, store: cfg.Store, logger: logger}, nil
}

// Options tune one query.
type Options struct {
	// KeepPhase keeps the phase tag in the normalized query record.
	KeepPhase bool
}

// Result is the normalized candidate and the stored records matching it.
type Result struct {
	Phase   core.Phase
	Query   *core.Record
	Matches []*core.Record
}

// Query validates the candidate against its phase schema, normalizes it
// (nulls dropped, phase tag dropped unless kept) and selects every row of
// the phase table with the same calculation method and classification, each
// compared only when the candidate has it. Only the candidate's non-null fields
// are selected. Nothing is read from the store if validation fails.
func (e *Engine) Query(ctx context.Context, candidate *core.Record, opts Options) (*Result, error) {
	p, err := e.validator.Validate(candidate)
	if err != nil {
		return nil, err
	}

	normalized := candidate.DropNulls()
	columns := normalized.Without(core.FieldPhase).Keys()
	if !opts.KeepPhase {
		normalized = normalized.Without(core.FieldPhase)
	}

	calc, _ := normalized.String(core.FieldCalcMethod)
	class, _ := normalized.String(core.FieldClassification)
	filter := store.Filter{CalcMethod: calc, Classification: class}

	matches, err := e.store.Select(ctx, p, columns, filter)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("query",
		slog.String("phase", p.Code()),
		slog.String("calc", calc),
		slog.String("classification", class),
		slog.Int("columns", len(columns)),
		slog.Int("matches", len(matches)))

	return &Result{Phase: p, Query: normalized, Matches: matches}, nil
}
