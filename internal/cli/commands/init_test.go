package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/devbench/internal/cli/config"
	"github.com/leapstack-labs/devbench/internal/pipeline"
)

func TestNewInitCommand(t *testing.T) {
	tests := []struct {
		name      string
		setupDir  func(t *testing.T, dir string) // setup before running
		args      []string
		wantErr   bool
		wantFiles []string
	}{
		{
			name:      "init empty directory",
			args:      []string{},
			wantFiles: []string{"devbench.yaml", "data", "reference"},
		},
		{
			name:      "init named directory",
			args:      []string{"project"},
			wantFiles: []string{"project/devbench.yaml", "project/data", "project/reference"},
		},
		{
			name: "init existing config without force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "devbench.yaml"), []byte("existing"), 0600)
			},
			args:    []string{},
			wantErr: true,
		},
		{
			name: "init existing config with force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "devbench.yaml"), []byte("existing"), 0600)
			},
			args:      []string{"--force"},
			wantFiles: []string{"devbench.yaml", "data"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config.ResetConfig()
			tmpDir := t.TempDir()
			t.Chdir(tmpDir)

			if tt.setupDir != nil {
				tt.setupDir(t, tmpDir)
			}

			cmd := NewInitCommand()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			for _, f := range tt.wantFiles {
				_, err := os.Stat(filepath.Join(tmpDir, f))
				assert.NoError(t, err, "expected file/dir %q to exist", f)
			}
		})
	}
}

func TestInitCommandMetadata(t *testing.T) {
	cmd := NewInitCommand()

	assert.Equal(t, "init [directory]", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotNil(t, cmd.Flags().Lookup("force"), "--force flag should exist")
	assert.NotNil(t, cmd.Flags().Lookup("workbook-name"), "--workbook-name flag should exist")
}

func TestInitCreatesLoadableConfig(t *testing.T) {
	config.ResetConfig()
	defer config.ResetConfig()
	t.Setenv(pipeline.WorkbookEnv, "")
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	cmd := NewInitCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--workbook-name", "開発実績.xlsx"})
	require.NoError(t, cmd.Execute())

	content, err := os.ReadFile("devbench.yaml")
	require.NoError(t, err)
	for _, expected := range []string{"workbook: data/開発実績.xlsx", "reference_dir: reference", "type: sqlite", "port: 8780"} {
		assert.Contains(t, string(content), expected)
	}

	config.ResetConfig()
	cfg, err := config.LoadConfig(filepath.Join(tmpDir, "devbench.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, "data", "開発実績.xlsx"), cfg.Workbook)
	assert.Equal(t, filepath.Join(tmpDir, "data", "devbench.sqlite3"), cfg.Target.DSN)
}
