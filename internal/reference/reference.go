// Package reference serves the published per-phase reference statistics
// that comparisons are read against.
package reference

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/leapstack-labs/devbench/pkg/core"
)

// FileSuffix follows the phase short label in reference file names.
const FileSuffix = "_参照項目.json"

// Document is a reference document as published: free-form JSON.
type Document = json.RawMessage

// Library loads reference documents from a directory on demand and keeps
// them for later lookups.
type Library struct {
	dir string

	mu    sync.Mutex
	cache map[core.Phase]Document
}

// NewLibrary returns a library over dir.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir, cache: make(map[core.Phase]Document)}
}

// Dir returns the library directory.
func (l *Library) Dir() string {
	return l.dir
}

// Path returns the file of a phase's reference document.
func (l *Library) Path(p core.Phase) string {
	return filepath.Join(l.dir, p.Short()+FileSuffix)
}

// Lookup returns the reference document of a phase. A missing file is a
// ConfigError; a file that is not JSON is reported as is.
func (l *Library) Lookup(p core.Phase) (Document, error) {
	if !p.Valid() {
		return nil, &core.UnknownPhaseError{Label: p.String()}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if doc, ok := l.cache[p]; ok {
		return doc, nil
	}

	path := l.Path(p)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &core.ConfigError{
			Key:    "reference_dir",
			Path:   path,
			Reason: fmt.Sprintf("no reference document for phase %s", p.Short()),
			Err:    err,
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read reference document: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("reference document %s is not valid JSON", path)
	}

	doc := Document(data)
	l.cache[p] = doc
	return doc, nil
}

// Available lists the phases that have a reference document.
func (l *Library) Available() []core.Phase {
	var out []core.Phase
	for _, p := range core.Phases() {
		if info, err := os.Stat(l.Path(p)); err == nil && info.Mode().IsRegular() {
			out = append(out, p)
		}
	}
	return out
}
