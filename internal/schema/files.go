package schema

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/leapstack-labs/devbench/internal/artifact"
	"github.com/leapstack-labs/devbench/pkg/core"
)

// Write stores a schema at its layout path and returns the path.
func Write(l artifact.Layout, s *core.Schema) (string, error) {
	path := l.SchemaPath(s.Phase)
	if err := artifact.WriteJSON(path, s); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads the schema of one phase. The schema must name the phase it is
// stored under.
func Load(l artifact.Layout, p core.Phase) (*core.Schema, error) {
	path := l.SchemaPath(p)
	var s core.Schema
	if err := artifact.ReadJSON(path, &s); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &core.ConfigError{Path: path, Reason: fmt.Sprintf("no schema for phase %s", p.Short()), Err: err}
		}
		return nil, err
	}
	if s.Phase != p {
		return nil, fmt.Errorf("%s: schema is for phase %s", path, s.Phase.Short())
	}
	return &s, nil
}

// LoadAll reads the schema of every phase that has one. At least one schema
// must exist.
func LoadAll(l artifact.Layout) ([]*core.Schema, error) {
	var out []*core.Schema
	for _, p := range core.Phases() {
		s, err := Load(l, p)
		var cfgErr *core.ConfigError
		if errors.As(err, &cfgErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, &core.ConfigError{
			Path:   l.Root,
			Reason: "no phase schemas found; run materialize first",
		}
	}
	return out, nil
}

// LoadValidator loads every available schema and compiles a Validator.
func LoadValidator(l artifact.Layout) (*Validator, error) {
	schemas, err := LoadAll(l)
	if err != nil {
		return nil, err
	}
	return NewValidator(schemas...)
}
