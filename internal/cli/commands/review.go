package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/devbench/internal/cli/output"
	"github.com/leapstack-labs/devbench/pkg/core"
)

// NewReviewCommand creates the review command.
func NewReviewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "review <file>",
		Short: "Assemble the review context of a candidate",
		Long: `Assemble what a reviewer is given about a candidate record: the candidate
with its phase tag, the past records of other systems measured the same
way, and the phase's reference statistics.

The reference document must exist. Use -o json to feed the context to other
tools.`,
		Example: `  devbench review candidate.json -o json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReview(cmd, args[0])
		},
	}
}

func runReview(cmd *cobra.Command, file string) error {
	cc := NewCommandContext(cmd)
	r := cc.Renderer

	sess, cleanup, err := loadSession(cmd, cc, file, cc.References())
	if err != nil {
		return err
	}
	defer cleanup()

	rc, err := sess.Review(cmd.Context())
	if err != nil {
		return err
	}
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(rc)
	}

	system, _ := rc.Current.String(core.FieldSystem)
	r.Header(1, fmt.Sprintf("Review: %s (%s)", system, rc.Phase.Short()))

	r.Header(2, "Candidate")
	for _, key := range rc.Current.Keys() {
		v, _ := rc.Current.Get(key)
		r.Println(output.FormatKeyValue(key, output.FormatValue(v)))
	}
	r.Println("")

	r.Header(2, fmt.Sprintf("Past records (%d)", len(rc.Past)))
	columns := rc.Current.Without(core.FieldPhase).Keys()
	rows := make([][]any, 0, len(rc.Past))
	for _, rec := range rc.Past {
		row := make([]any, len(columns))
		for i, col := range columns {
			row[i], _ = rec.Get(col)
		}
		rows = append(rows, row)
	}
	r.Table(columns, rows)
	r.Println("")

	r.Header(2, "Reference")
	return renderDocument(r, rc.Reference)
}

// NewReferenceCommand creates the reference command.
func NewReferenceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reference <phase>",
		Short: "Show the reference statistics of a phase",
		Long: `Show the reference document of a phase from the reference library
(<reference_dir>/<phase label>_参照項目.json).`,
		Example: `  devbench reference RD
  devbench reference 結合テスト --reference-dir ./reference`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completePhases,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := core.ParsePhase(args[0])
			if err != nil {
				return err
			}
			cc := NewCommandContext(cmd)
			doc, err := cc.References().Lookup(p)
			if err != nil {
				return err
			}
			if cc.Renderer.EffectiveMode() != output.ModeJSON {
				cc.Renderer.Header(1, "Reference: "+p.Short())
			}
			return renderDocument(cc.Renderer, doc)
		},
	}
}
