// Package artifact names and writes the intermediate files of an ETL run:
// per-phase CSV tables, JSON instance records and JSON schemas.
//
// Layout under the data directory:
//
//	csv/<short>.csv
//	json/<short>/<short>.schema.json
//	json/<short>/<short>_NN.json
package artifact

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/leapstack-labs/devbench/pkg/core"
)

// Directory and file name parts.
const (
	CSVDir        = "csv"
	JSONDir       = "json"
	SchemaSuffix  = ".schema.json"
	JSONExt       = ".json"
	CSVExt        = ".csv"
	minIndexWidth = 2
)

// Layout resolves artifact paths under a data directory.
type Layout struct {
	Root string
}

// CSVPath returns the flattened table file of a phase.
func (l Layout) CSVPath(p core.Phase) string {
	return filepath.Join(l.Root, CSVDir, p.Short()+CSVExt)
}

// PhaseDir returns the JSON directory of a phase.
func (l Layout) PhaseDir(p core.Phase) string {
	return filepath.Join(l.Root, JSONDir, p.Short())
}

// SchemaPath returns the schema file of a phase.
func (l Layout) SchemaPath(p core.Phase) string {
	return filepath.Join(l.PhaseDir(p), p.Short()+SchemaSuffix)
}

// InstancePath returns the file of the idx-th record of a phase, with the
// index zero-padded to width digits.
func (l Layout) InstancePath(p core.Phase, idx, width int) string {
	return filepath.Join(l.PhaseDir(p), InstanceName(p, idx, width))
}

// InstanceName returns "<short>_<idx>.json" with idx zero-padded.
func InstanceName(p core.Phase, idx, width int) string {
	return fmt.Sprintf("%s_%0*d%s", p.Short(), width, idx, JSONExt)
}

// IndexWidth is the zero-pad width for n records: enough digits for the
// largest index, and at least two.
func IndexWidth(n int) int {
	return max(minIndexWidth, len(strconv.Itoa(max(n-1, 0))))
}

// IsInstanceFile reports whether name looks like an instance record rather
// than a schema or another JSON document.
func IsInstanceFile(name string) bool {
	return strings.HasSuffix(name, JSONExt) && strings.Count(name, ".") == 1
}
