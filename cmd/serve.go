// File: cmd/serve.go
package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/gardener-cli/internal/observability"
	"github.com/xkilldash9x/gardener-cli/internal/service"
)

// newServeCmd creates the 'serve' command: the HTTP trigger/status surface.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP trigger and status endpoints.",
		Long: `The serve command exposes POST /evolve (trigger one cycle, rejected with
409 while a cycle is running), GET /status and GET /healthz. Triggers are
fire-and-forget; poll /status for the outcome.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			coord, err := service.BuildCoordinator(logger, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize coordinator: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := service.NewServer(logger, cfg.Server, service.NewHandlers(logger, coord))
			if err := srv.Run(ctx); err != nil {
				return fmt.Errorf("http service: %w", err)
			}

			// Let an in-flight cycle finish before exiting.
			coord.WaitIdle()
			return nil
		},
	}
}
