package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/edgefleet/otaupdater/internal/config"
	"github.com/edgefleet/otaupdater/internal/daemon"
	"github.com/edgefleet/otaupdater/internal/exitstatus"
	"github.com/edgefleet/otaupdater/internal/logfields"
)

// DaemonCmd implements the SPEC_FULL.md daemon command: runs check-in (and,
// if configured, install) on a schedule instead of once per invocation.
type DaemonCmd struct{}

func (d *DaemonCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config)
	if err != nil {
		return fail(exitstatus.UnknownError, "%v", err)
	}

	e := newEnv(cfg, g.Logger)

	tick := func(ctx context.Context) error {
		correlationID := uuid.NewString()
		logger := g.Logger.With(logfields.Correlation(correlationID))

		start := time.Now()
		targets, err := e.ctrl.CheckIn(ctx)
		e.metrics.ObserveCheckIn(time.Since(start), resultLabel(err))
		if err != nil {
			logger.Warn("daemon check-in failed", logfields.Error(err))
			return err
		}
		logger.Info("daemon check-in succeeded", "candidates", len(targets))

		if !cfg.Daemon.AutoInstall || len(targets) == 0 {
			return nil
		}

		latest, ok := e.ctrl.GetLatest(cfg.Provision.PrimaryECUHardwareID)
		if !ok {
			return nil
		}
		current, err := e.ctrl.GetCurrent(ctx)
		if err == nil && latest.Equal(current) {
			return nil
		}

		logger.Info("daemon auto-installing target", logfields.TargetName(latest.Name), logfields.Version(latest.Version))
		install := &InstallCmd{Target: latest.Name}
		if err := install.Run(g, root); err != nil {
			logger.Warn("daemon auto-install failed", logfields.Error(err))
			return err
		}
		return nil
	}

	onReload := func(newCfg *config.Config) {
		g.Logger.Info("daemon picked up reloaded configuration", "sysroot", newCfg.Pacman.Sysroot)
	}

	dmn := daemon.New(cfg, root.Config, tick, onReload, e.registry, g.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := dmn.Start(ctx); err != nil {
		return fail(exitstatus.UnknownError, "daemon start failed: %v", err)
	}

	<-ctx.Done()
	g.Logger.Info("shutdown signal received, stopping daemon")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := dmn.Stop(shutdownCtx); err != nil {
		return fail(exitstatus.UnknownError, "daemon stop failed: %v", err)
	}
	return nil
}
