// Package app wires the healing engine's components for the serve command.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/takeshi-yoshida/Naoru/internal/api"
	"github.com/takeshi-yoshida/Naoru/internal/config"
	"github.com/takeshi-yoshida/Naoru/internal/detect"
	"github.com/takeshi-yoshida/Naoru/internal/healing"
	"github.com/takeshi-yoshida/Naoru/internal/learning"
	"github.com/takeshi-yoshida/Naoru/internal/monitoring"
	"github.com/takeshi-yoshida/Naoru/internal/state"
	"github.com/takeshi-yoshida/Naoru/internal/store"
)

// App owns every running component of the engine.
type App struct {
	logger *zap.Logger
	cfg    *config.Config

	store         *store.Store
	learner       *learning.System
	orchestrator  *healing.Orchestrator
	apiServer     *api.Server
	metricsServer *monitoring.Server
	detector      *detect.Detector
	persister     *state.Persister

	cancel context.CancelFunc
}

// New builds the component graph from the configuration.
func New(logger *zap.Logger, cfg *config.Config) (*App, error) {
	a := &App{logger: logger, cfg: cfg}

	st, err := store.New(logger, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open learning store: %w", err)
	}
	a.store = st

	a.learner = learning.NewSystem(logger, cfg.Learning, st)

	executor := healing.NewSimulatedExecutor(logger)
	if !cfg.Executor.Accelerate {
		executor.Accelerate = 1
	}

	var metrics *monitoring.Metrics
	if cfg.Monitoring.Enabled {
		metrics = monitoring.NewMetrics(cfg.Monitoring.Namespace)
		a.metricsServer = monitoring.NewServer(logger, cfg.Monitoring, metrics)
	}

	a.orchestrator = healing.NewOrchestrator(logger, cfg.Healing, executor, a.learner, metrics)

	a.persister, err = state.NewPersister(logger, cfg.State)
	if err != nil {
		a.store.Close()
		return nil, err
	}
	if snap, err := a.persister.Load(); err != nil {
		logger.Warn("Failed to load engine snapshot, starting fresh", zap.Error(err))
	} else if snap != nil {
		if err := a.orchestrator.Restore(snap); err != nil {
			logger.Warn("Failed to restore engine snapshot, starting fresh", zap.Error(err))
		} else {
			logger.Info("Engine state restored",
				zap.Int("failures_handled", snap.FailuresHandled),
				zap.Time("saved_at", snap.SavedAt),
			)
		}
	}

	if cfg.API.Enabled {
		a.apiServer, err = api.NewServer(logger, cfg.API, a.orchestrator, a.learner, metrics)
		if err != nil {
			a.store.Close()
			a.persister.Close()
			return nil, err
		}
	}

	if cfg.Detect.Enabled {
		a.detector = detect.NewDetector(logger, cfg.Detect, a.orchestrator)
	}

	return a, nil
}

// Orchestrator exposes the healing pipeline, mainly for the simulate
// command.
func (a *App) Orchestrator() *healing.Orchestrator { return a.orchestrator }

// Learner exposes the learning system.
func (a *App) Learner() *learning.System { return a.learner }

// Start launches every enabled component.
func (a *App) Start() error {
	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.orchestrator.Start()

	if a.metricsServer != nil {
		a.metricsServer.Start()
	}
	if a.apiServer != nil {
		if err := a.apiServer.Start(); err != nil {
			return err
		}
	}
	if a.detector != nil {
		go a.detector.Run(runCtx)
	}

	go a.saveLoop(runCtx)
	return nil
}

// saveLoop periodically snapshots the engine to disk.
func (a *App) saveLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.State.SaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.persister.Save(a.orchestrator.Snapshot()); err != nil {
				a.logger.Warn("Failed to save engine snapshot", zap.Error(err))
			}
		}
	}
}

// Shutdown stops everything and writes a final snapshot.
func (a *App) Shutdown(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	if a.apiServer != nil {
		if err := a.apiServer.Shutdown(ctx); err != nil {
			a.logger.Warn("API shutdown error", zap.Error(err))
		}
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Warn("Metrics shutdown error", zap.Error(err))
		}
	}

	a.orchestrator.Stop(10 * time.Second)

	if err := a.persister.Save(a.orchestrator.Snapshot()); err != nil {
		a.logger.Warn("Failed to save final snapshot", zap.Error(err))
	}
	a.persister.Close()

	if err := a.store.Close(); err != nil {
		a.logger.Warn("Store close error", zap.Error(err))
	}
	return nil
}
