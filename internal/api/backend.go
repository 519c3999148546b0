package api

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/devbench/internal/artifact"
	"github.com/leapstack-labs/devbench/internal/compare"
	"github.com/leapstack-labs/devbench/internal/query"
	"github.com/leapstack-labs/devbench/internal/schema"
	"github.com/leapstack-labs/devbench/internal/store"
)

// Backend is what the handlers read from: the loaded schemas and a querier
// over the store.
type Backend struct {
	Validator *schema.Validator
	Querier   compare.Querier
	// Close releases the backend. May be nil.
	Close func() error
}

func (b *Backend) close() error {
	if b == nil || b.Close == nil {
		return nil
	}
	return b.Close()
}

// Opener builds a Backend. The server calls it on start and again after
// every ETL rerun.
type Opener func(ctx context.Context) (*Backend, error)

// StoreOpener opens the store and the schemas of a data directory and puts
// a query engine over them.
func StoreOpener(layout artifact.Layout, target store.Config, logger *slog.Logger) Opener {
	return func(ctx context.Context) (*Backend, error) {
		validator, err := schema.LoadValidator(layout)
		if err != nil {
			return nil, err
		}
		st, err := store.Open(ctx, target)
		if err != nil {
			return nil, err
		}
		eng, err := query.New(query.Config{Validator: validator, Store: st, Logger: logger})
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		return &Backend{Validator: validator, Querier: eng, Close: st.Close}, nil
	}
}
