// File: internal/service/factory.go
// Description: Centralized construction of the evolution components. Each
// command builds its dependency graph through here so wiring stays in one
// place and tests can substitute their own graphs.

package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gardener-cli/api/schemas"
	"github.com/xkilldash9x/gardener-cli/internal/chronicle"
	"github.com/xkilldash9x/gardener-cli/internal/config"
	"github.com/xkilldash9x/gardener-cli/internal/coordinator"
	"github.com/xkilldash9x/gardener-cli/internal/gate"
	"github.com/xkilldash9x/gardener-cli/internal/pipeline"
	"github.com/xkilldash9x/gardener-cli/internal/scanner"
	"github.com/xkilldash9x/gardener-cli/internal/snapshot"
	"github.com/xkilldash9x/gardener-cli/internal/synthesizer"
)

// BuildCoordinator assembles the full cycle coordinator from configuration.
func BuildCoordinator(logger *zap.Logger, cfg *config.Config) (*coordinator.Coordinator, error) {
	if cfg.Repo.Workdir == "" {
		return nil, fmt.Errorf("repo.workdir must be configured")
	}

	journal, err := chronicle.New(logger, cfg.Evolution.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	gateFn := func(maxChangeRatio float64) schemas.SafetyGate {
		return gate.New(logger, maxChangeRatio)
	}

	return coordinator.New(
		logger,
		cfg.Evolution,
		snapshot.NewProvider(logger, cfg.Repo),
		scanner.Default(logger, cfg.Evolution.Detectors),
		synthesizer.New(logger),
		gateFn,
		pipeline.New(logger, cfg.Repo),
		journal,
	), nil
}
