package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/devbench/internal/cli/output"
	"github.com/leapstack-labs/devbench/internal/compare"
	"github.com/leapstack-labs/devbench/internal/reference"
	"github.com/leapstack-labs/devbench/pkg/core"
)

// CompareOptions holds options for the compare command.
type CompareOptions struct {
	ExcludeSelf bool
	Metric      string
}

// NewCompareCommand creates the compare command.
func NewCompareCommand() *cobra.Command {
	opts := &CompareOptions{}

	cmd := &cobra.Command{
		Use:   "compare <file>",
		Short: "Compare a candidate with past systems side by side",
		Long: `Query the matches of a candidate record and pivot them: one column per
system, one row per metric the candidate fills in. The phase's reference
statistics are shown when the reference library has them.

With --metric the values of one metric are listed per system, the
candidate's own system first.`,
		Example: `  devbench compare candidate.json
  devbench compare candidate.json --exclude-self
  devbench compare candidate.json --metric 規模_ページ数`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.ExcludeSelf, "exclude-self", false, "Leave out the candidate's own system")
	cmd.Flags().StringVarP(&opts.Metric, "metric", "m", "", "Show the series of one metric")

	return cmd
}

// loadSession opens the backend and loads a candidate file into a session.
func loadSession(cmd *cobra.Command, cc *CommandContext, file string, refs *reference.Library) (*compare.Session, func(), error) {
	b, err := cc.OpenBackend(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { closeBackend(cc, b.Close) }

	f, err := os.Open(file)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to open candidate: %w", err)
	}
	defer func() { _ = f.Close() }()

	sess := compare.NewSession(b.Querier, refs)
	c, err := sess.Load(filepath.Base(file), f)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	cc.Logger.Debug("candidate loaded", "file", c.Name, "bytes", c.Size)
	return sess, cleanup, nil
}

func runCompare(cmd *cobra.Command, file string, opts *CompareOptions) error {
	cc := NewCommandContext(cmd)
	r := cc.Renderer

	sess, cleanup, err := loadSession(cmd, cc, file, cc.References())
	if err != nil {
		return err
	}
	defer cleanup()

	cmp, err := sess.Compare(cmd.Context(), compare.Options{ExcludeSelf: opts.ExcludeSelf})
	if errors.Is(err, compare.ErrNoData) {
		r.Warning(err.Error())
		return nil
	}
	if err != nil {
		return err
	}

	if opts.Metric != "" {
		series, err := cmp.Chart(opts.Metric)
		if errors.Is(err, compare.ErrNoData) {
			r.Warning(err.Error())
			return nil
		}
		if err != nil {
			return err
		}
		return renderSeries(r, series)
	}
	return renderComparison(r, cmp)
}

func renderComparison(r *output.Renderer, cmp *compare.Comparison) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(cmp)
	}

	method, _ := cmp.Query.String(core.FieldCalcMethod)
	title := fmt.Sprintf("%s: %s (%s", cmp.Phase.Short(), cmp.System(), method)
	if class, ok := cmp.Query.String(core.FieldClassification); ok {
		title += ", " + class
	}
	r.Header(1, title+")")

	headers := append([]string{"Metric", "Candidate"}, cmp.Pivot.Systems...)
	rows := make([][]any, 0, len(cmp.Pivot.Rows))
	for _, row := range cmp.Pivot.Rows {
		current, _ := cmp.Query.Get(row.Metric)
		cells := append([]any{row.Metric, current}, row.Values...)
		rows = append(rows, cells)
	}
	r.Table(headers, rows)

	if len(cmp.Reference) > 0 {
		r.Println("")
		r.Header(2, "Reference")
		return renderDocument(r, cmp.Reference)
	}
	return nil
}

func renderSeries(r *output.Renderer, s *compare.Series) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(s)
	}
	r.Header(1, s.Metric)
	rows := make([][]any, 0, len(s.Points))
	for _, p := range s.Points {
		mark := ""
		if p.Current {
			mark = "*"
		}
		var v any
		if p.Value != nil {
			v = *p.Value
		}
		rows = append(rows, []any{p.System, v, mark})
	}
	r.Table([]string{"System", "Value", "Current"}, rows)
	return nil
}

// renderDocument prints a JSON document indented, fenced in markdown mode.
func renderDocument(r *output.Renderer, doc json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, doc, "", "  "); err != nil {
		return fmt.Errorf("failed to format document: %w", err)
	}
	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println("```json")
		r.Println(buf.String())
		r.Println("```")
		return nil
	}
	r.Println(buf.String())
	return nil
}
