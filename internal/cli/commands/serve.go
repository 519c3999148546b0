package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/devbench/internal/api"
	"github.com/leapstack-labs/devbench/internal/pipeline"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query engine over HTTP",
		Long: `Start the HTTP API for dashboards and review tooling.

Endpoints:
  GET  /healthz
  GET  /api/phases
  GET  /api/schemas/{phase}
  GET  /api/reference/{phase}
  POST /api/query     [?keep_phase=true]
  POST /api/compare   [?exclude_self=true&metric=NAME]
  POST /api/review

With --watch the ETL reruns when the workbook changes and the server
switches to the new store once the run succeeds.`,
		Example: `  devbench serve
  devbench serve --port 9000 --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}

	cmd.Flags().Int("port", 0, "Port to listen on (default from serve.port)")
	cmd.Flags().BoolP("watch", "w", false, "Rerun the ETL when the workbook changes")

	return cmd
}

func runServe(cmd *cobra.Command) error {
	cc := NewCommandContext(cmd)

	open, err := cc.Opener()
	if err != nil {
		return err
	}

	var p *pipeline.Pipeline
	if cc.Cfg.Serve.Watch {
		if p, err = cc.Pipeline(); err != nil {
			return err
		}
		// Start from a store that matches the workbook as it is now.
		report, err := p.Run(cmd.Context())
		if err != nil {
			return err
		}
		if err := renderReport(cc.Renderer, "ETL", report); err != nil {
			return err
		}
	}

	srv, err := api.NewServer(api.Config{
		Open:       open,
		References: cc.References(),
		Pipeline:   p,
		Port:       cc.Cfg.Serve.Port,
		Watch:      cc.Cfg.Serve.Watch,
		Logger:     cc.Logger,
	})
	if err != nil {
		return err
	}
	return srv.Serve(cmd.Context())
}
