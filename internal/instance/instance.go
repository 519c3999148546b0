// Package instance turns flattened phase tables into self-describing JSON
// records, one file per row.
package instance

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/leapstack-labs/devbench/internal/artifact"
	"github.com/leapstack-labs/devbench/internal/sheet"
	"github.com/leapstack-labs/devbench/pkg/core"
)

// Materialize converts every row to a record: the phase tag first, then each
// column in order. Empty cells stay as explicit nulls.
func Materialize(t *sheet.Table) []*core.Record {
	out := make([]*core.Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		r := core.NewRecord()
		r.Set(core.FieldPhase, t.Phase.Short())
		for i, name := range t.Columns {
			var v any
			if i < len(row) {
				v = row[i]
			}
			r.Set(name, v)
		}
		out = append(out, r)
	}
	return out
}

// Write stores the records of one phase as <short>_NN.json and returns the
// written paths in record order. Instance files left over from a previous
// run of the phase are removed first.
func Write(l artifact.Layout, p core.Phase, records []*core.Record) ([]string, error) {
	if _, err := Clear(l, p); err != nil {
		return nil, err
	}
	width := artifact.IndexWidth(len(records))
	paths := make([]string, 0, len(records))
	for i, r := range records {
		path := l.InstancePath(p, i, width)
		if err := artifact.WriteJSON(path, r); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Clear removes the instance files of a phase and returns their paths.
// Schema files are kept.
func Clear(l artifact.Layout, p core.Phase) ([]string, error) {
	names, err := List(l, p)
	if err != nil {
		return nil, err
	}
	removed := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(l.PhaseDir(p), name)
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", path, err)
		}
		removed = append(removed, path)
	}
	return removed, nil
}

// List returns the instance file names of a phase in lexical order. A
// missing phase directory yields no names.
func List(l artifact.Layout, p core.Phase) ([]string, error) {
	entries, err := os.ReadDir(l.PhaseDir(p))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list phase %s: %w", p.Short(), err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && artifact.IsInstanceFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Entry is a record read back from disk.
type Entry struct {
	Path   string
	Record *core.Record
}

// Read loads the instance records of a phase in file name order.
func Read(l artifact.Layout, p core.Phase) ([]Entry, error) {
	names, err := List(l, p)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(names))
	for _, name := range names {
		path := filepath.Join(l.PhaseDir(p), name)
		r, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Path: path, Record: r})
	}
	return out, nil
}

// ReadFile loads one record file.
func ReadFile(path string) (*core.Record, error) {
	r := core.NewRecord()
	if err := artifact.ReadJSON(path, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Decode reads one record from a stream.
func Decode(rd io.Reader) (*core.Record, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}
	r := core.NewRecord()
	if err := r.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("failed to parse record: %w", err)
	}
	return r, nil
}
