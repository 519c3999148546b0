package config

import (
	"fmt"
	"os"

	"github.com/leapstack-labs/devbench/internal/pipeline"
	"github.com/leapstack-labs/devbench/internal/store"
	"github.com/leapstack-labs/devbench/pkg/core"
)

var outputModes = map[string]bool{"auto": true, "text": true, "markdown": true, "json": true}

// Validate checks if the configuration is valid. The workbook is not
// checked here so that help and schema commands work without one.
func (c *Config) Validate() error {
	if _, err := store.Lookup(c.Target.Type); err != nil {
		return &core.ConfigError{Key: "target.type", Reason: "unsupported target", Err: err}
	}
	if c.OutputFormat != "" && !outputModes[c.OutputFormat] {
		return &core.ConfigError{Key: "output", Reason: fmt.Sprintf("unknown output format %q (auto|text|markdown|json)", c.OutputFormat)}
	}
	if c.Serve.Port < 0 || c.Serve.Port > 65535 {
		return &core.ConfigError{Key: "serve.port", Reason: fmt.Sprintf("port %d out of range", c.Serve.Port)}
	}
	if c.WatchDebounce < 0 {
		return &core.ConfigError{Key: "watch_debounce", Reason: fmt.Sprintf("negative duration %s", c.WatchDebounce)}
	}
	return nil
}

// ValidateWorkbook checks the workbook the ETL reads.
func (c *Config) ValidateWorkbook() error {
	return pipeline.ValidateWorkbook(c.Workbook)
}

// ValidateReferenceDir checks that the reference library directory exists.
func (c *Config) ValidateReferenceDir() error {
	info, err := os.Stat(c.ReferenceDir)
	if err != nil {
		return &core.ConfigError{Key: "reference_dir", Path: c.ReferenceDir, Reason: "reference directory not found", Err: err}
	}
	if !info.IsDir() {
		return &core.ConfigError{Key: "reference_dir", Path: c.ReferenceDir, Reason: "not a directory"}
	}
	return nil
}
