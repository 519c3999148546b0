package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Dialect captures what differs between the supported databases.
type Dialect struct {
	Name   string
	Driver string // database/sql driver name
	// Goose is the goose dialect for static migrations. Empty means the
	// migration statements are applied directly.
	Goose     string
	TextType  string
	FloatType string
	// Memory is true when the DSN names a private in-memory database that
	// must stay on a single connection.
	Memory func(dsn string) bool
	// DSN turns the configured location into a driver DSN.
	DSN func(location string) string
	// Numbered placeholders ($1, $2, ...) instead of "?".
	Numbered bool
}

// Placeholder returns the n-th (1-based) bind parameter.
func (d *Dialect) Placeholder(n int) string {
	if d.Numbered {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// QuoteIdent quotes a table or column name. Field names are Japanese text
// and are always quoted.
func (d *Dialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]*Dialect)
)

// Register adds a dialect. Called from init functions.
func Register(d *Dialect) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d.Name] = d
}

// Lookup returns a registered dialect.
func Lookup(name string) (*Dialect, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if d, ok := registry[name]; ok {
		return d, nil
	}
	return nil, &UnknownDialectError{Name: name, Available: dialectNames()}
}

// Dialects lists the registered dialect names, sorted.
func Dialects() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return dialectNames()
}

func dialectNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownDialectError is returned for a target type that is not registered.
type UnknownDialectError struct {
	Name      string
	Available []string
}

func (e *UnknownDialectError) Error() string {
	return fmt.Sprintf("unknown target type %q\nAvailable targets: %v\nHint: Check target.type in devbench.yaml", e.Name, e.Available)
}
