// Package schema derives phase schemas from flattened tables and validates
// records against them.
package schema

import (
	"fmt"

	"github.com/leapstack-labs/devbench/internal/sheet"
	"github.com/leapstack-labs/devbench/pkg/core"
)

// Synthesize derives the schema of a phase table. The phase tag comes first
// and is fixed to the phase's short label; the identifier and categorical
// columns are required strings; everything else is an optional number.
func Synthesize(t *sheet.Table) (*core.Schema, error) {
	if t.ColumnIndex(core.FieldSystem) < 0 {
		return nil, fmt.Errorf("phase %s: table has no %q column", t.Phase.Short(), core.FieldSystem)
	}
	if t.ColumnIndex(core.FieldPhase) >= 0 {
		return nil, fmt.Errorf("phase %s: column %q is reserved for the phase tag", t.Phase.Short(), core.FieldPhase)
	}

	s := &core.Schema{
		Phase: t.Phase,
		Properties: []core.Property{{
			Name:  core.FieldPhase,
			Types: []string{core.TypeString},
			Enum:  []string{t.Phase.Short()},
		}},
		Required: []string{core.FieldPhase},
		Closed:   true,
	}

	var categoricals []string
	for _, name := range t.Columns {
		prop := core.Property{Name: name}
		switch core.KindOf(name) {
		case core.KindIdentifier:
			prop.Types = []string{core.TypeString}
		case core.KindCategorical:
			prop.Types = []string{core.TypeString}
			prop.Enum = core.Vocabulary(name)
			categoricals = append(categoricals, name)
		default:
			prop.Types = []string{core.TypeNumber, core.TypeNull}
		}
		s.Properties = append(s.Properties, prop)
	}

	s.Required = append(s.Required, core.FieldSystem)
	s.Required = append(s.Required, categoricals...)
	return s, nil
}
