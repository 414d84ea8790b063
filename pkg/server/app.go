// Package server owns the application lifecycle: phase dispatch and orderly
// teardown of the external sinks.
package server

import (
	"context"
	"fmt"

	drepo "MarketPull/internal/domain/repository"
	"MarketPull/internal/usecase"
	"MarketPull/pkg/config"
	applogger "MarketPull/pkg/logger"
)

// Run phases selectable from the command line.
const (
	PhaseSnapshot  = "snapshot"
	PhaseReconcile = "reconcile"
)

// App bundles the wired pipeline with the resources that need closing.
type App struct {
	cfg       *config.Config
	runner    *usecase.Runner
	mirror    drepo.Mirror
	publisher drepo.Publisher
	log       *applogger.Logger
}

// New creates the application. mirror and publisher may be nil when their
// sinks are disabled.
func New(cfg *config.Config, runner *usecase.Runner, mirror drepo.Mirror, publisher drepo.Publisher, log *applogger.Logger) *App {
	return &App{cfg: cfg, runner: runner, mirror: mirror, publisher: publisher, log: log}
}

// Run executes one phase to completion.
func (a *App) Run(ctx context.Context, phase string) error {
	a.log.Info("starting run",
		applogger.String("phase", phase),
		applogger.String("env", a.cfg.Environment))

	switch phase {
	case PhaseSnapshot:
		return a.runner.RunSnapshot(ctx)
	case PhaseReconcile:
		return a.runner.RunReconcile(ctx)
	default:
		return fmt.Errorf("unknown phase %q (want %s or %s)", phase, PhaseSnapshot, PhaseReconcile)
	}
}

// Close tears down external sinks. Safe to call with disabled sinks.
func (a *App) Close() {
	a.log.RemoveCollector()
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			a.log.Warn("mirror close failed", applogger.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn("publisher close failed", applogger.Error(err))
		}
	}
}
