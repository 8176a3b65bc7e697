package main

import (
	"context"
	"strings"

	"github.com/edgefleet/otaupdater/internal/exitstatus"
	"github.com/edgefleet/otaupdater/internal/model"
)

// CompleteCmd implements the `complete` command (§6): run after reboot to
// finalize or roll back the pending installation.
type CompleteCmd struct{}

func (c *CompleteCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config)
	if err != nil {
		return fail(exitstatus.UnknownError, "%v", err)
	}
	e := newEnv(cfg, g.Logger)
	ctx := context.Background()

	pending, hasPending, err := e.ctrl.GetPendingTarget(ctx)
	if err != nil {
		return fail(exitstatus.UnknownError, "%v", err)
	}

	appsStartedOk := true
	if hasPending && e.apps != nil {
		if err := e.apps.SyncApps(ctx, pending); err != nil {
			g.Logger.Warn("apps failed to start on pending target", "error", err)
			appsStartedOk = false
		}
	}

	result := e.ctrl.CompleteInstallation(ctx, appsStartedOk)

	switch {
	case !hasPending:
		return fail(exitstatus.NoPendingInstallation, "%s", result.Description)
	case result.Description == "InstallRollbackOk":
		return fail(exitstatus.InstallRollbackOk, "%s", result.Description)
	case result.Description == "InstallRollbackNeedsReboot":
		return fail(exitstatus.InstallRollbackNeedsReboot, "%s", result.Description)
	case strings.HasPrefix(result.Description, "InstallRollbackFailed"):
		return fail(exitstatus.InstallRollbackFailed, "%s", result.Description)
	case result.Kind == model.InstallOk:
		return nil
	default:
		return fail(exitstatus.UnknownError, "%s", result.Description)
	}
}
