package main

import (
	"context"
	"time"

	"github.com/edgefleet/otaupdater/internal/exitstatus"
)

// CheckCmd implements the `check` command (§6): fetch candidate targets and
// report how many were found. Nothing is persisted for a later `install`,
// which performs its own check-in.
type CheckCmd struct{}

func (c *CheckCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config)
	if err != nil {
		return fail(exitstatus.CheckinFailure, "%v", err)
	}

	e := newEnv(cfg, g.Logger)
	ctx := context.Background()

	start := time.Now()
	targets, err := e.ctrl.CheckIn(ctx)
	e.metrics.ObserveCheckIn(time.Since(start), resultLabel(err))
	if err != nil {
		if len(e.index.All()) > 0 {
			g.Logger.Warn("check-in failed, serving previously cached targets", "error", err)
			return exitWith(exitstatus.CheckinOkCached, "check-in failed; %d cached targets still available", len(e.index.All()))
		}
		return fail(exitstatus.CheckinFailure, "check-in failed: %v", err)
	}

	g.Logger.Info("check-in succeeded", "candidates", len(targets))
	return nil
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "ok"
}

// exitWith reports a non-failure but non-Ok exit code (e.g.
// CheckinOkCached) alongside a human message. It builds the same exitError
// as fail, so main logs it like any other command failure.
func exitWith(code exitstatus.Code, format string, args ...any) error {
	return fail(code, format, args...)
}
