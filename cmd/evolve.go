// File: cmd/evolve.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gardener-cli/api/schemas"
	"github.com/xkilldash9x/gardener-cli/internal/config"
	"github.com/xkilldash9x/gardener-cli/internal/coordinator"
	"github.com/xkilldash9x/gardener-cli/internal/observability"
	"github.com/xkilldash9x/gardener-cli/internal/service"
)

// CycleRunner runs one synchronous improvement cycle. Using an interface
// allows mock implementations in tests.
type CycleRunner interface {
	RunCycle(ctx context.Context, ov schemas.Overrides) (schemas.CommitRecord, error)
}

// coordinatorInitializer creates a CycleRunner; injected for testing.
type coordinatorInitializer func(logger *zap.Logger, cfg *config.Config) (CycleRunner, error)

func initializeCoordinator(logger *zap.Logger, cfg *config.Config) (CycleRunner, error) {
	return service.BuildCoordinator(logger, cfg)
}

// newEvolveCmd creates the 'evolve' command: it runs exactly one
// scan-synthesize-gate-commit cycle against the configured repository and
// prints the resulting commit record.
func newEvolveCmd() *cobra.Command {
	var (
		dryRun         bool
		maxChangeRatio float64
		timeout        time.Duration
	)

	initFn := initializeCoordinator

	cmd := &cobra.Command{
		Use:   "evolve",
		Short: "Run one improvement cycle against the configured repository.",
		Long: `The evolve command captures a snapshot of the repository, scans it for
improvement candidates, synthesizes bounded patches, validates them against
the safety gate, and commits the survivors in one atomic commit.
WARNING: without --dry-run this modifies the repository.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			ov := schemas.Overrides{DryRun: dryRun}
			if cmd.Flags().Changed("max-change-ratio") {
				ov.MaxChangeRatio = &maxChangeRatio
			}
			if cmd.Flags().Changed("timeout") {
				secs := int(timeout.Seconds())
				ov.TimeoutSeconds = &secs
			}

			return runEvolve(cmd.Context(), cfg, logger, ov, initFn)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Scan and validate but do not apply, commit, or push.")
	cmd.Flags().Float64Var(&maxChangeRatio, "max-change-ratio", 0.5, "Maximum fraction of a file one patch may change.")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Wall-clock budget for the cycle (e.g. 2m).")
	return cmd
}

// runEvolve contains the core logic, decoupled from cobra.
func runEvolve(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	ov schemas.Overrides,
	initFn coordinatorInitializer,
) error {
	coord, err := initFn(logger, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize coordinator: %w", err)
	}

	record, err := coord.RunCycle(ctx, ov)
	if err != nil {
		if errors.Is(err, coordinator.ErrCycleBusy) || errors.Is(err, coordinator.ErrCooldown) {
			return err
		}
		return fmt.Errorf("cycle error: %w", err)
	}

	fmt.Printf("cycle %s: %s", record.CycleID, record.Outcome)
	if record.CommitID != "" {
		fmt.Printf(" (commit %s)", record.CommitID)
	}
	fmt.Println()
	for _, applied := range record.Applied {
		fmt.Printf("  applied  %-11s %s: %s\n", applied.Category, applied.Path, applied.Rationale)
	}
	for _, skip := range record.Skipped {
		fmt.Printf("  skipped  %s (%s): %s\n", skip.CandidateID, skip.Stage, skip.Reason)
	}
	if record.Reason != "" {
		fmt.Printf("  reason: %s\n", record.Reason)
	}

	logger.Info("Evolve command completed.",
		zap.String("cycle_id", record.CycleID),
		zap.String("outcome", string(record.Outcome)),
	)
	return nil
}
