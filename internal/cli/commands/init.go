package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/devbench/internal/cli/config"
	"github.com/leapstack-labs/devbench/internal/cli/output"
)

// starterConfig is the devbench.yaml written by init.
type starterConfig struct {
	Workbook     string        `yaml:"workbook"`
	DataDir      string        `yaml:"data_dir"`
	ReferenceDir string        `yaml:"reference_dir"`
	Target       starterTarget `yaml:"target"`
	Output       string        `yaml:"output"`
	Serve        starterServe  `yaml:"serve"`
}

type starterTarget struct {
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

type starterServe struct {
	Port  int  `yaml:"port"`
	Watch bool `yaml:"watch"`
}

const starterHeader = `# devbench configuration
#
# Paths are relative to this file. Environment variables override these
# values (DEVBENCH_WORKBOOK, DEVBENCH_TARGET__DSN, ...), and so do flags.
`

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var workbook string

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new devbench project",
		Long: `Initialize a devbench project with a starter configuration.

This creates:
  - devbench.yaml configuration file
  - data/ directory for the workbook and the generated files
  - reference/ directory for the per-phase reference documents`,
		Example: `  # Initialize in current directory
  devbench init

  # Initialize in a new directory, pointing at an existing workbook name
  devbench init my-project --workbook-name 開発実績.xlsx

  # Force overwrite existing config
  devbench init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			cfg := getConfig()
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))
			return runInit(r, dir, workbook, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().StringVar(&workbook, "workbook-name", "metrics.xlsx", "File name of the workbook under data/")

	return cmd
}

func runInit(r *output.Renderer, dir, workbook string, force bool) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	configPath := filepath.Join(dir, "devbench.yaml")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("devbench.yaml already exists. Use --force to overwrite")
	}

	starter := starterConfig{
		Workbook:     filepath.ToSlash(filepath.Join("data", workbook)),
		DataDir:      "data",
		ReferenceDir: config.DefaultReferenceDir,
		Target:       starterTarget{Type: config.DefaultTarget, DSN: "data/devbench.sqlite3"},
		Output:       config.DefaultOutput,
		Serve:        starterServe{Port: config.DefaultPort},
	}
	data, err := yaml.Marshal(&starter)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	r.Header(1, "Initializing devbench project")
	for _, sub := range []string{"data", config.DefaultReferenceDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o750); err != nil {
			return fmt.Errorf("failed to create %s: %w", sub, err)
		}
		r.StatusLine(sub+"/", "success", "")
	}
	if err := os.WriteFile(configPath, append([]byte(starterHeader), data...), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}
	r.StatusLine("devbench.yaml", "success", "")

	r.Println("")
	r.Success("devbench project initialized!")
	r.Muted(fmt.Sprintf("Put the workbook at %s, then run: devbench etl", starter.Workbook))
	return nil
}
