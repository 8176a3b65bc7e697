package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/edgefleet/otaupdater/internal/model"
	"github.com/edgefleet/otaupdater/internal/state"
)

// Installer drives a single target through download and install, produced
// by Controller.Installer and bound to a reason string for logging/metrics.
type Installer struct {
	ctrl   *Controller
	target model.Target
	reason string
}

// Installer begins a new install traversal for target, rejecting a second
// concurrent traversal (§4.G, §5 "Shared resources").
func (c *Controller) Installer(target model.Target, reason string) (*Installer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inProgress {
		return nil, fmt.Errorf("installation already in progress")
	}
	c.inProgress = true
	return &Installer{ctrl: c, target: target, reason: reason}, nil
}

// release clears the in-progress flag; called once the traversal reaches a
// terminal state.
func (i *Installer) release() {
	i.ctrl.mu.Lock()
	i.ctrl.inProgress = false
	i.ctrl.mu.Unlock()
}

// Download pulls the installer's target via the Rootfs Tree Manager, then
// runs verifyAgainstMetadata; on failure it releases the in-progress lock,
// marks the state failed and returns VerificationFailed (§4.G).
func (i *Installer) Download(ctx context.Context) model.InstallationResult {
	i.ctrl.status.Store(StateDownloading)

	current, err := i.ctrl.GetCurrent(ctx)
	if err != nil {
		i.release()
		i.ctrl.status.Store(StateFailed)
		return model.NewResult(model.InstallUnknownError, err.Error())
	}

	result := i.ctrl.rootfsMgr.Download(ctx, i.target, current.Hash)
	if result.Kind != model.InstallOk {
		i.release()
		i.ctrl.status.Store(StateFailed)
		return model.NewResult(result.Kind, result.Description)
	}

	if !i.verifyAgainstMetadata() {
		i.release()
		i.ctrl.status.Store(StateFailed)
		return model.NewResult(model.InstallVerificationFailed, "downloaded artifact disagrees with signed metadata")
	}

	i.ctrl.status.Store(StateDownloaded)
	return model.Ok(result.Description)
}

// verifyAgainstMetadata checks only that the installer's target carries a
// non-empty hash. It does not re-read the staged artifact and does not
// re-validate the signed metadata.
func (i *Installer) verifyAgainstMetadata() bool {
	return i.target.Hash != ""
}

// Install delegates to the Rootfs Tree Manager and records the installed
// version on success. It does not update the x-ats-target report header,
// and none of its callers in the CLI or daemon do either.
func (i *Installer) Install(ctx context.Context) model.InstallationResult {
	i.ctrl.status.Store(StateInstalling)
	defer i.release()

	current, err := i.ctrl.GetCurrent(ctx)
	if err != nil {
		i.ctrl.status.Store(StateFailed)
		return model.NewResult(model.InstallUnknownError, err.Error())
	}

	pendingHash := ""
	if pending, ok, _ := i.ctrl.GetPendingTarget(ctx); ok {
		pendingHash = pending.Hash
	}

	result := i.ctrl.rootfsMgr.Install(ctx, i.target, current, pendingHash)

	switch result.Kind {
	case model.InstallOk:
		i.ctrl.status.Store(StateOk)
		i.recordInstalled(ctx)
	case model.InstallNeedCompletion:
		i.ctrl.status.Store(StateNeedsReboot)
		i.recordInstalled(ctx)
	default:
		i.ctrl.status.Store(StateFailed)
	}

	return result
}

func (i *Installer) recordInstalled(ctx context.Context) {
	if i.ctrl.versions == nil {
		return
	}
	err := i.ctrl.versions.Record(ctx, state.InstalledVersion{
		Target:      i.target,
		InstalledAt: time.Now(),
	})
	if err != nil {
		i.ctrl.logger.Warn("failed to record installed version", "error", err, "hash", i.target.Hash)
	}
}

// CompleteInstallation finalizes after reboot (§4.G), distinguishing
// bootloader-driven rollback (current != pending) from app-driven rollback
// (current == pending but app startup failed).
func (c *Controller) CompleteInstallation(ctx context.Context, appsStartedOk bool) model.InstallationResult {
	current, err := c.GetCurrent(ctx)
	if err != nil {
		return model.NewResult(model.InstallUnknownError, err.Error())
	}

	pending, hasPending, err := c.GetPendingTarget(ctx)
	if err != nil {
		return model.NewResult(model.InstallUnknownError, err.Error())
	}
	if !hasPending {
		if c.versions != nil {
			if err := c.versions.MarkFinalized(ctx, current.Hash); err != nil {
				c.logger.Warn("failed to mark target finalized", "error", err)
			}
		}
		c.status.Store(StateFinalized)
		return model.Ok("no pending installation; nothing to finalize")
	}

	if current.Hash != pending.Hash {
		// Bootloader-driven rollback: the bootloader itself booted the old
		// deployment rather than the staged one.
		if c.apps != nil {
			if err := c.apps.SyncApps(ctx, current); err != nil {
				c.status.Store(StateFailed)
				return model.NewResult(model.InstallInstallFailed, "InstallRollbackFailed: rollback app sync failed: "+err.Error())
			}
		}
		c.status.Store(StateRolledBack)
		return model.NewResult(model.InstallOk, "InstallRollbackOk")
	}

	if appsStartedOk {
		if c.versions != nil {
			if err := c.versions.MarkFinalized(ctx, current.Hash); err != nil {
				c.logger.Warn("failed to mark target finalized", "error", err)
			}
		}
		c.status.Store(StateFinalized)
		return model.Ok("finalized")
	}

	// App-driven rollback: the pending target booted fine, but its apps
	// failed to come up. Find the newest known-installed version older
	// than the pending target and try to install it.
	rollbackTarget, found, err := c.rollbackCandidate(ctx, pending.Version)
	if err != nil {
		c.status.Store(StateFailed)
		return model.NewResult(model.InstallUnknownError, err.Error())
	}
	if !found {
		c.status.Store(StateFailed)
		return model.NewResult(model.InstallInstallFailed, "InstallRollbackFailed: no older installed target available")
	}

	installer, err := c.Installer(rollbackTarget, "app-driven-rollback")
	if err != nil {
		return model.NewResult(model.InstallInstallFailed, "InstallRollbackFailed: "+err.Error())
	}
	result := installer.Install(ctx)
	if result.Kind == model.InstallNeedCompletion {
		return model.NewResult(model.InstallNeedCompletion, "InstallRollbackNeedsReboot")
	}
	return model.NewResult(model.InstallInstallFailed, "InstallRollbackFailed: "+result.Description)
}

func (c *Controller) rollbackCandidate(ctx context.Context, pendingVersion int64) (model.Target, bool, error) {
	if c.versions == nil {
		return model.Target{}, false, nil
	}
	return c.versions.RollbackCandidate(ctx, pendingVersion)
}

// GetRollbackTarget exposes the same search CompleteInstallation uses, for
// callers (e.g. the CLI's `complete` command) that want to report the
// candidate before acting on it.
func (c *Controller) GetRollbackTarget(ctx context.Context, pendingVersion int64) (model.Target, bool, error) {
	return c.rollbackCandidate(ctx, pendingVersion)
}
