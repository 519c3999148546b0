package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/devbench/internal/cli/output"
	"github.com/leapstack-labs/devbench/internal/compare"
	"github.com/leapstack-labs/devbench/internal/query"
	"github.com/leapstack-labs/devbench/pkg/core"
)

// maxParallelQueries bounds the candidates queried at once.
const maxParallelQueries = 4

// QueryOptions holds options for the query command.
type QueryOptions struct {
	KeepPhase bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query <file>...",
		Short: "Find past records comparable to candidate records",
		Long: `Validate each candidate JSON record against its phase schema and list the
stored records of the same phase measured the same way: same calculation
method and, when the candidate has one, the same classification.

Only the fields the candidate fills in are shown. A candidate that fails
validation is reported as a warning and the others are still queried.`,
		Example: `  # Query one candidate
  devbench query candidate.json

  # Query several, as JSON
  devbench query a.json b.json -o json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.KeepPhase, "keep-phase", false, "Keep the phase tag in the normalized query")

	return cmd
}

// QueryOutput is the result for one candidate file.
type QueryOutput struct {
	File    string         `json:"file"`
	Phase   string         `json:"phase,omitempty"`
	Query   *core.Record   `json:"query,omitempty"`
	Matches []*core.Record `json:"matches"`
	Error   string         `json:"error,omitempty"`

	err error
}

func runQuery(cmd *cobra.Command, files []string, opts *QueryOptions) error {
	cc := NewCommandContext(cmd)
	ctx := cmd.Context()

	b, err := cc.OpenBackend(ctx)
	if err != nil {
		return err
	}
	defer closeBackend(cc, b.Close)

	results := make([]QueryOutput, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelQueries)
	for i, file := range files {
		g.Go(func() error {
			results[i] = queryFile(gctx, b.Querier, file, opts)
			// Per-file failures are reported, not fatal; only cancellation stops the batch.
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for i := range results {
		if results[i].err != nil {
			failed++
		}
	}

	if err := renderQueryResults(cc.Renderer, results); err != nil {
		return err
	}
	if failed == len(results) {
		if failed == 1 {
			return results[0].err
		}
		return fmt.Errorf("all %d candidates failed", failed)
	}
	return nil
}

func queryFile(ctx context.Context, q compare.Querier, file string, opts *QueryOptions) QueryOutput {
	out := QueryOutput{File: file, Matches: []*core.Record{}}
	fail := func(err error) QueryOutput {
		out.err = err
		out.Error = err.Error()
		return out
	}

	f, err := os.Open(file)
	if err != nil {
		return fail(fmt.Errorf("failed to open candidate: %w", err))
	}
	defer func() { _ = f.Close() }()

	sess := compare.NewSession(q, nil)
	c, err := sess.Load(filepath.Base(file), f)
	if err != nil {
		return fail(err)
	}
	res, err := q.Query(ctx, c.Record, query.Options{KeepPhase: opts.KeepPhase})
	if err != nil {
		return fail(err)
	}
	out.Phase = res.Phase.Short()
	out.Query = res.Query
	if res.Matches != nil {
		out.Matches = res.Matches
	}
	return out
}

func renderQueryResults(r *output.Renderer, results []QueryOutput) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(results)
	}

	for i, res := range results {
		if i > 0 {
			r.Println("")
		}
		if res.err != nil {
			var ve *core.ValidationError
			var ue *core.UnknownPhaseError
			if errors.As(res.err, &ve) || errors.As(res.err, &ue) {
				r.Warning(fmt.Sprintf("%s: %v", res.File, res.err))
				continue
			}
			r.Error(fmt.Sprintf("%s: %v", res.File, res.err))
			continue
		}

		r.Header(2, fmt.Sprintf("%s (%s)", res.File, res.Phase))
		columns := res.Query.Keys()
		rows := make([][]any, 0, len(res.Matches))
		for _, m := range res.Matches {
			row := make([]any, len(columns))
			for j, col := range columns {
				row[j], _ = m.Get(col)
			}
			rows = append(rows, row)
		}
		r.Table(columns, rows)
	}
	return nil
}
