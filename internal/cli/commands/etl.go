package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/devbench/internal/cli/output"
	"github.com/leapstack-labs/devbench/internal/pipeline"
	"github.com/leapstack-labs/devbench/pkg/core"
)

// ETLOptions holds options for the etl command.
type ETLOptions struct {
	Watch bool
}

// NewETLCommand creates the etl command.
func NewETLCommand() *cobra.Command {
	opts := &ETLOptions{}

	cmd := &cobra.Command{
		Use:   "etl",
		Short: "Run normalize, materialize and load",
		Long: `Turn the metrics workbook into a queryable store.

Runs the three ETL stages in order:
  1. normalize    xlsx sheets to one CSV per phase
  2. materialize  CSV to a JSON schema and one JSON instance per row
  3. load         instances into the relational store

With --watch the pipeline runs again whenever the workbook is saved.`,
		Example: `  # Run the full ETL
  devbench etl --workbook data/metrics.xlsx

  # Load into DuckDB instead of SQLite
  devbench etl --target duckdb

  # Rerun on every save
  devbench etl --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runETL(cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Rerun when the workbook changes")

	return cmd
}

func runETL(cmd *cobra.Command, opts *ETLOptions) error {
	cc := NewCommandContext(cmd)
	p, err := cc.Pipeline()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	report, err := p.Run(ctx)
	if err != nil {
		return err
	}
	if err := renderReport(cc.Renderer, "ETL", report); err != nil {
		return err
	}
	if !opts.Watch {
		return nil
	}

	cc.Renderer.Muted(fmt.Sprintf("Watching %s (Ctrl+C to stop)", p.Workbook()))
	return p.Watch(ctx, func(report *pipeline.Report, err error) {
		if err != nil {
			cc.Renderer.Error(err.Error())
			return
		}
		_ = renderReport(cc.Renderer, "ETL", report)
	})
}

// NewNormalizeCommand creates the normalize command.
func NewNormalizeCommand() *cobra.Command {
	return newStageCommand("normalize", "Flatten workbook sheets to CSV",
		`Read the phase sheets of the workbook, flatten their three header rows
into field names and write one CSV per phase.

With no arguments every phase sheet in the workbook is converted.`,
		func(ctx context.Context, p *pipeline.Pipeline, phases []core.Phase) (*pipeline.Report, error) {
			return p.Normalize(ctx, phases...)
		})
}

// NewMaterializeCommand creates the materialize command.
func NewMaterializeCommand() *cobra.Command {
	return newStageCommand("materialize", "Synthesize schemas and write JSON instances",
		`Synthesize the JSON schema of each phase CSV and write one validated JSON
instance per row. Existing instances of a phase are replaced.

With no arguments every phase with a CSV file is materialized.`,
		func(ctx context.Context, p *pipeline.Pipeline, phases []core.Phase) (*pipeline.Report, error) {
			return p.Materialize(ctx, phases...)
		})
}

// NewLoadCommand creates the load command.
func NewLoadCommand() *cobra.Command {
	cmd := newStageCommand("load", "Rebuild the store from the JSON instances",
		`Drop and recreate the store, define one table per phase schema and insert
every instance after validating it again.`,
		func(ctx context.Context, p *pipeline.Pipeline, _ []core.Phase) (*pipeline.Report, error) {
			return p.Load(ctx)
		})
	cmd.Use = "load"
	cmd.Example = "  devbench load\n  devbench load --target duckdb"
	cmd.Args = cobra.NoArgs
	cmd.ValidArgsFunction = nil
	return cmd
}

type stageFunc func(ctx context.Context, p *pipeline.Pipeline, phases []core.Phase) (*pipeline.Report, error)

func newStageCommand(name, short, long string, run stageFunc) *cobra.Command {
	return &cobra.Command{
		Use:               name + " [phase...]",
		Short:             short,
		Long:              long,
		Example:           fmt.Sprintf("  devbench %s\n  devbench %s RD DES1", name, name),
		ValidArgsFunction: completePhases,
		RunE: func(cmd *cobra.Command, args []string) error {
			phases, err := parsePhases(args)
			if err != nil {
				return err
			}
			cc := NewCommandContext(cmd)
			p, err := cc.Pipeline()
			if err != nil {
				return err
			}
			report, err := run(cmd.Context(), p, phases)
			if err != nil {
				return err
			}
			return renderReport(cc.Renderer, titleCase(name), report)
		},
	}
}

// ReportOutput is the JSON form of a pipeline report.
type ReportOutput struct {
	Phases  []PhaseReportOutput `json:"phases"`
	Records int                 `json:"records"`
}

// PhaseReportOutput is one phase of a ReportOutput.
type PhaseReportOutput struct {
	Phase     string   `json:"phase"`
	Code      string   `json:"code"`
	CSV       string   `json:"csv,omitempty"`
	Schema    string   `json:"schema,omitempty"`
	Instances []string `json:"instances,omitempty"`
	RunID     string   `json:"run_id,omitempty"`
	Records   *int     `json:"records,omitempty"`
}

func reportOutput(report *pipeline.Report) ReportOutput {
	out := ReportOutput{Phases: []PhaseReportOutput{}, Records: report.Records()}
	for _, pr := range report.Phases {
		po := PhaseReportOutput{
			Phase:     pr.Phase.Short(),
			Code:      pr.Phase.Code(),
			CSV:       pr.CSV,
			Schema:    pr.Schema,
			Instances: pr.Instances,
		}
		if pr.Run != nil {
			po.RunID = pr.Run.ID
			n := pr.Run.Records
			po.Records = &n
		}
		out.Phases = append(out.Phases, po)
	}
	return out
}

func renderReport(r *output.Renderer, title string, report *pipeline.Report) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(reportOutput(report))
	}

	r.Header(1, title)
	for _, pr := range report.Phases {
		var parts []string
		if pr.CSV != "" {
			parts = append(parts, filepath.Base(pr.CSV))
		}
		if pr.Schema != "" {
			parts = append(parts, filepath.Base(pr.Schema))
		}
		if len(pr.Instances) > 0 {
			parts = append(parts, fmt.Sprintf("%d instances", len(pr.Instances)))
		}
		if pr.Run != nil {
			parts = append(parts, fmt.Sprintf("%d records loaded", pr.Run.Records))
		}
		r.StatusLine(fmt.Sprintf("%s (%s)", pr.Phase.Short(), pr.Phase.Code()), "success", strings.Join(parts, ", "))
	}
	r.Println("")
	if n := report.Records(); n > 0 {
		r.Success(fmt.Sprintf("%d phases, %d records", len(report.Phases), n))
	} else {
		r.Success(fmt.Sprintf("%d phases", len(report.Phases)))
	}
	return nil
}

// closeBackend releases a backend opened by a command.
func closeBackend(cc *CommandContext, release func() error) {
	if release == nil {
		return
	}
	if err := release(); err != nil {
		cc.Logger.Warn("failed to close store", "error", err)
	}
}
