// Package config provides configuration management for the devbench CLI.
//
// Configuration is layered: built-in defaults, then devbench.yaml, then the
// legacy RAG_TAB_PATH variable, then DEVBENCH_* environment variables and
// finally explicitly set command-line flags.
package config

import "time"

// TargetConfig selects the relational store.
type TargetConfig struct {
	Type string `koanf:"type"` // sqlite, duckdb or postgres
	DSN  string `koanf:"dsn"`  // file path for sqlite/duckdb, connection string for postgres
}

// ServeConfig holds configuration for the API server.
type ServeConfig struct {
	Port  int  `koanf:"port"`
	Watch bool `koanf:"watch"`
}

// Config holds all CLI configuration options.
type Config struct {
	ProjectRoot  string       `koanf:"-"`
	Workbook     string       `koanf:"workbook"`
	DataDir      string       `koanf:"data_dir"`
	ReferenceDir string       `koanf:"reference_dir"`
	Database     string       `koanf:"database"` // Deprecated: use Target.DSN
	Target       TargetConfig `koanf:"target"`
	Verbose      bool         `koanf:"verbose"`
	OutputFormat string       `koanf:"output"`
	Serve        ServeConfig  `koanf:"serve"`

	// WatchDebounce is how long etl --watch and serve --watch wait for
	// workbook writes to settle, e.g. "500ms" or "2s".
	WatchDebounce time.Duration `koanf:"watch_debounce"`
}

// Default configuration values.
const (
	DefaultReferenceDir = "reference"
	DefaultTarget       = "sqlite"
	DefaultOutput       = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultPort         = 8780

	DefaultWatchDebounce = 500 * time.Millisecond
)

// Names of the files searched for in the project root.
var configFileNames = []string{"devbench.yaml", "devbench.yml"}

// EnvPrefix prefixes every environment variable the loader reads. Nested
// keys use a double underscore: DEVBENCH_TARGET__DSN sets target.dsn.
const EnvPrefix = "DEVBENCH_"
