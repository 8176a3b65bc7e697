package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/edgefleet/otaupdater/internal/controller"
	"github.com/edgefleet/otaupdater/internal/exitstatus"
	"github.com/edgefleet/otaupdater/internal/model"
)

// InstallCmd implements the `install` command (§6): select a target by
// version, name, or "latest", download it, and install it.
type InstallCmd struct {
	Version     *int64 `help:"Install the target with this exact integer version"`
	Target      string `help:"Install the target with this exact name"`
	InstallMode string `name:"install-mode" help:"all installs apps immediately; delay-app-install defers them to a later complete" enum:"all,delay-app-install" default:"all"`
	Force       bool   `help:"Allow installing a version older than the currently booted one"`
}

func (i *InstallCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config)
	if err != nil {
		return fail(exitstatus.TufMetaPullFailure, "%v", err)
	}
	e := newEnv(cfg, g.Logger)
	ctx := context.Background()

	targets, err := e.ctrl.CheckIn(ctx)
	if err != nil {
		return fail(exitstatus.TufMetaPullFailure, "check-in before install failed: %v", err)
	}

	target, ok := i.selectTarget(targets, e, cfg.Provision.PrimaryECUHardwareID)
	if !ok {
		return fail(exitstatus.TufTargetNotFound, "no matching target found")
	}

	if err := e.ctrl.EnsureNotDowngrade(ctx, target, i.Force); err != nil {
		if errors.Is(err, controller.ErrDowngradeAttempt) {
			return fail(exitstatus.InstallDowngradeAttempt, "target version %d is older than the current version", target.Version)
		}
		return fail(exitstatus.UnknownError, "%v", err)
	}

	installer, err := e.ctrl.Installer(target, "cli-install")
	if err != nil {
		return fail(exitstatus.InstallationInProgress, "%v", err)
	}

	start := time.Now()
	downloadResult := installer.Download(ctx)
	e.metrics.ObserveDownload(target.Name, time.Since(start), string(downloadResult.Kind))
	if !downloadResult.IsOk() {
		return fail(exitstatus.FromInstallResult(string(downloadResult.Kind), downloadResult.Description),
			"download failed: %s", downloadResult.Description)
	}

	start = time.Now()
	installResult := installer.Install(ctx)
	e.metrics.ObserveInstall(time.Since(start), string(installResult.Kind))

	switch installResult.Kind {
	case model.InstallOk:
		return i.finishAppSync(g, e, ctx, target)
	case model.InstallNeedCompletion:
		if strings.Contains(installResult.Description, "bootloader") {
			return fail(exitstatus.InstallNeedsRebootForBootFw, "%s", installResult.Description)
		}
		return fail(exitstatus.InstallNeedsReboot, "%s", installResult.Description)
	default:
		return fail(exitstatus.FromInstallResult(string(installResult.Kind), installResult.Description),
			"install failed: %s", installResult.Description)
	}
}

// finishAppSync implements the --install-mode split: "all" syncs apps now
// (a failure here is InstallAppPullFailure), "delay-app-install" leaves them
// for the next `complete` and reports InstallAppsNeedFinalization.
func (i *InstallCmd) finishAppSync(g *Global, e *env, ctx context.Context, target model.Target) error {
	if i.InstallMode == "delay-app-install" {
		return fail(exitstatus.InstallAppsNeedFinalization, "rootfs installed; apps deferred to complete")
	}
	if e.apps == nil {
		return nil
	}
	if err := e.apps.SyncApps(ctx, target); err != nil {
		return fail(exitstatus.InstallAppPullFailure, "app sync failed: %v", err)
	}
	return nil
}

func (i *InstallCmd) selectTarget(targets []model.Target, e *env, hwid string) (model.Target, bool) {
	switch {
	case i.Version != nil:
		for _, t := range targets {
			if t.Version == *i.Version {
				return t, true
			}
		}
		return model.Target{}, false
	case i.Target != "":
		for _, t := range targets {
			if t.Name == i.Target {
				return t, true
			}
		}
		return model.Target{}, false
	default:
		return e.ctrl.GetLatest(hwid)
	}
}
