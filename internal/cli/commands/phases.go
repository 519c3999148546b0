package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/devbench/internal/cli/output"
	"github.com/leapstack-labs/devbench/internal/schema"
	"github.com/leapstack-labs/devbench/pkg/core"
)

var titleCaser = cases.Title(language.English)

func titleCase(s string) string {
	return titleCaser.String(s)
}

// PhaseOutput describes one lifecycle phase.
type PhaseOutput struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Short     string `json:"short"`
	Long      string `json:"long"`
	Schema    bool   `json:"schema"`
	Reference bool   `json:"reference"`
}

// NewPhasesCommand creates the phases command.
func NewPhasesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "phases",
		Short: "List the lifecycle phases",
		Long: `List the six lifecycle phases with their codes and labels, and whether a
schema has been materialized and a reference document exists for each.

Any of the code, the English name or the Japanese label can be used where a
command takes a phase argument.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPhases(cmd)
		},
	}
}

func runPhases(cmd *cobra.Command) error {
	cc := NewCommandContext(cmd)
	r := cc.Renderer

	// A project without data yet still lists the phases.
	layout, layoutErr := cc.Layout()
	refs := cc.References()

	phases := make([]PhaseOutput, 0, len(core.Phases()))
	for _, p := range core.Phases() {
		po := PhaseOutput{Code: p.Code(), Name: p.Name(), Short: p.Short(), Long: p.Long()}
		if layoutErr == nil {
			_, err := schema.Load(layout, p)
			po.Schema = err == nil
		}
		_, err := refs.Lookup(p)
		po.Reference = err == nil
		phases = append(phases, po)
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(phases)
	}

	mark := func(ok bool) string {
		if ok {
			return "yes"
		}
		return "-"
	}
	rows := make([][]any, 0, len(phases))
	for _, po := range phases {
		rows = append(rows, []any{po.Code, titleCase(po.Name), po.Short, po.Long, mark(po.Schema), mark(po.Reference)})
	}
	r.Header(1, "Phases")
	r.Table([]string{"Code", "Name", "Sheet", "Label", "Schema", "Reference"}, rows)
	return nil
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <phase>",
		Short: "Show the materialized schema of a phase",
		Long: `Show the JSON schema synthesized for a phase by materialize.

Text and markdown output list the fields with their types and allowed
values; JSON output is the schema document itself.`,
		Example: `  devbench schema RD
  devbench schema 基本設計 -o json`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completePhases,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(cmd, args[0])
		},
	}
}

func runSchema(cmd *cobra.Command, arg string) error {
	p, err := core.ParsePhase(arg)
	if err != nil {
		return err
	}
	cc := NewCommandContext(cmd)
	layout, err := cc.Layout()
	if err != nil {
		return err
	}
	sc, err := schema.Load(layout, p)
	if err != nil {
		var ce *core.ConfigError
		if errors.As(err, &ce) {
			return fmt.Errorf("%w\nHint: run 'devbench materialize %s' first", err, p.Code())
		}
		return err
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(sc)
	}

	required := make(map[string]bool, len(sc.Required))
	for _, name := range sc.Required {
		required[name] = true
	}
	rows := make([][]any, 0, len(sc.Properties))
	for _, prop := range sc.Properties {
		req := ""
		if required[prop.Name] {
			req = "yes"
		}
		rows = append(rows, []any{prop.Name, strings.Join(prop.Types, "|"), req, strings.Join(prop.Enum, ", ")})
	}
	r.Header(1, fmt.Sprintf("Schema: %s (%s)", p.Short(), p.Code()))
	r.Table([]string{"Field", "Type", "Required", "Allowed"}, rows)
	return nil
}
