package commands

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/devbench/internal/api"
	"github.com/leapstack-labs/devbench/internal/artifact"
	"github.com/leapstack-labs/devbench/internal/cli/config"
	"github.com/leapstack-labs/devbench/internal/cli/output"
	"github.com/leapstack-labs/devbench/internal/pipeline"
	"github.com/leapstack-labs/devbench/internal/reference"
	"github.com/leapstack-labs/devbench/internal/store"
	"github.com/leapstack-labs/devbench/pkg/core"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext from the loaded configuration.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}
}

// getConfig returns the current configuration, loading it from the
// environment when the root command did not.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	if cfg, err := config.LoadConfig("", nil); err == nil {
		return cfg
	}
	return &config.Config{
		ReferenceDir: config.DefaultReferenceDir,
		Target:       config.TargetConfig{Type: config.DefaultTarget},
		OutputFormat: config.DefaultOutput,
		Serve:        config.ServeConfig{Port: config.DefaultPort},
	}
}

// Pipeline creates the ETL pipeline. The workbook must exist.
func (c *CommandContext) Pipeline() (*pipeline.Pipeline, error) {
	return pipeline.New(pipeline.Config{
		Workbook: c.Cfg.Workbook,
		DataDir:  c.Cfg.DataDir,
		Target:   store.Config{Type: c.Cfg.Target.Type, DSN: c.Cfg.Target.DSN, Logger: c.Logger},
		Debounce: c.Cfg.WatchDebounce,
		Logger:   c.Logger,
	})
}

// Layout returns the artifact layout: data_dir, or the workbook's directory.
// The workbook itself need not exist.
func (c *CommandContext) Layout() (artifact.Layout, error) {
	switch {
	case c.Cfg.DataDir != "":
		return artifact.Layout{Root: c.Cfg.DataDir}, nil
	case c.Cfg.Workbook != "":
		return artifact.Layout{Root: filepath.Dir(c.Cfg.Workbook)}, nil
	default:
		return artifact.Layout{}, &core.ConfigError{Key: "data_dir", Reason: "set data_dir or the workbook path"}
	}
}

// Target returns the store configuration, defaulting the database location
// the same way the pipeline does.
func (c *CommandContext) Target() (store.Config, error) {
	target := store.Config{Type: c.Cfg.Target.Type, DSN: c.Cfg.Target.DSN, Logger: c.Logger}
	if target.Type == "" {
		target.Type = store.SQLite
	}
	if target.DSN != "" {
		return target, nil
	}
	if target.Type == store.Postgres {
		return target, &core.ConfigError{Key: "target.dsn", Reason: "a connection string is required for postgres"}
	}
	if c.Cfg.Workbook == "" {
		return target, &core.ConfigError{Key: "target.dsn", Reason: "set target.dsn or the workbook path"}
	}
	target.DSN = pipeline.DefaultDatabase(c.Cfg.Workbook, target.Type)
	return target, nil
}

// Opener returns the backend opener over the configured data directory and store.
func (c *CommandContext) Opener() (api.Opener, error) {
	layout, err := c.Layout()
	if err != nil {
		return nil, err
	}
	target, err := c.Target()
	if err != nil {
		return nil, err
	}
	return api.StoreOpener(layout, target, c.Logger), nil
}

// OpenBackend opens the schemas and the store for querying.
func (c *CommandContext) OpenBackend(ctx context.Context) (*api.Backend, error) {
	open, err := c.Opener()
	if err != nil {
		return nil, err
	}
	return open(ctx)
}

// References returns the reference library.
func (c *CommandContext) References() *reference.Library {
	return reference.NewLibrary(c.Cfg.ReferenceDir)
}

// parsePhases parses phase arguments (code, name or label).
func parsePhases(args []string) ([]core.Phase, error) {
	phases := make([]core.Phase, 0, len(args))
	for _, arg := range args {
		p, err := core.ParsePhase(arg)
		if err != nil {
			return nil, err
		}
		phases = append(phases, p)
	}
	return phases, nil
}

// completePhases completes phase arguments with their codes.
func completePhases(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	codes := make([]string, 0, len(core.Phases()))
	for _, p := range core.Phases() {
		codes = append(codes, p.Code())
	}
	return codes, cobra.ShellCompDirectiveNoFileComp
}
