// Package controller implements the Update Controller (§4.G): the top-level
// state machine that checks in for candidate targets, drives download and
// install through the Rootfs Tree Manager, and finalizes or rolls back
// after reboot. Orchestration shape grounded on the teacher's
// internal/services/orchestrator.go (top-level service orchestration) and
// internal/daemon/daemon.go (the run-loop/status-atomic.Value shape),
// re-targeted at the §4.G state machine instead of a doc-build pipeline.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/edgefleet/otaupdater/internal/model"
	"github.com/edgefleet/otaupdater/internal/rootfs"
	"github.com/edgefleet/otaupdater/internal/state"
)

// State is the install state machine's current phase.
type State string

const (
	StateIdle        State = "Idle"
	StateCheckedIn    State = "CheckedIn"
	StateDownloading  State = "Downloading"
	StateDownloaded   State = "Downloaded"
	StateInstalling   State = "Installing"
	StateOk           State = "Ok"
	StateNeedsReboot  State = "NeedsReboot"
	StateFailed       State = "Failed"
	StateFinalized    State = "Finalized"
	StateRolledBack   State = "RolledBack"
)

// MetadataSource supplies TUF-accepted candidate targets; the production
// implementation talks to the signed-metadata server, a local variant reads
// from an on-disk TUF repo for checkInLocal.
type MetadataSource interface {
	Targets(ctx context.Context) ([]model.Target, error)
}

// DeploymentSource reports the currently booted/pending deployment state,
// backed by the rootfs tree tool.
type DeploymentSource interface {
	CurrentTarget(ctx context.Context) (model.Target, error)
	PendingTarget(ctx context.Context) (model.Target, bool, error)
}

// AppSyncer synchronizes containerized applications to a target after a
// rollback; a no-op implementation is valid when a device runs no apps.
type AppSyncer interface {
	SyncApps(ctx context.Context, target model.Target) error
}

// Config carries the subset of configuration the controller consults
// directly (the rest is threaded through the collaborators it holds).
type Config struct {
	PrimaryHardwareID string
	SecondaryECUs     []string
	Tags              []string
	ForceDowngrade    bool
	TLSServerBase     string
}

// Controller is the Update Controller.
type Controller struct {
	cfg        Config
	metadata   MetadataSource
	deploys    DeploymentSource
	rootfsMgr  *rootfs.Manager
	apps       AppSyncer
	versions   state.InstalledVersionsStore
	httpClient *http.Client
	logger     *slog.Logger

	status atomic.Value // State

	mu             sync.Mutex
	inProgress     bool
	cachedTargets  []model.Target
	pendingTarget  *model.Target
	ecusRegistered bool
}

// New builds a Controller. httpClient is used for the one-time secondary
// ECU registration call (§3 [SUPPLEMENTED]); a nil client falls back to
// http.DefaultClient.
func New(cfg Config, metadata MetadataSource, deploys DeploymentSource, rootfsMgr *rootfs.Manager, apps AppSyncer, versions state.InstalledVersionsStore, httpClient *http.Client, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		cfg:        cfg,
		metadata:   metadata,
		deploys:    deploys,
		rootfsMgr:  rootfsMgr,
		apps:       apps,
		versions:   versions,
		httpClient: httpClient,
		logger:     logger,
	}
	c.status.Store(StateIdle)
	return c
}

func (c *Controller) Status() State {
	return c.status.Load().(State)
}

// CheckIn fetches candidate targets and applies the filter -> sort
// pipeline (§4.G): matching targets are those sharing at least one
// configured tag and whose hardware ids include the primary ecu id or any
// configured secondary hwid, sorted ascending by integer version
// (unparseable versions become -1, still included).
func (c *Controller) CheckIn(ctx context.Context) ([]model.Target, error) {
	targets, err := c.metadata.Targets(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch targets: %w", err)
	}

	filtered := c.filterAndSort(targets)

	c.mu.Lock()
	c.cachedTargets = filtered
	c.mu.Unlock()
	c.status.Store(StateCheckedIn)

	c.registerSecondaryECUsOnce(ctx, filtered)

	return filtered, nil
}

// registerSecondaryECUsOnce performs the one-time secondary ECU registration
// call (§3 [SUPPLEMENTED]) the first time check-in observes a matching
// target for each configured secondary hardware id that matches one; it
// registers as soon as at least one id matches, sending only the matched
// ids, and does not register again afterwards. Registration failures
// are logged and retried on a later check-in rather than failing CheckIn.
func (c *Controller) registerSecondaryECUsOnce(ctx context.Context, filtered []model.Target) {
	c.mu.Lock()
	alreadyDone := c.ecusRegistered
	c.mu.Unlock()
	if alreadyDone || len(c.cfg.SecondaryECUs) == 0 || c.cfg.TLSServerBase == "" {
		return
	}

	assignments := make(map[string]model.Target, len(c.cfg.SecondaryECUs))
	for _, hwid := range c.cfg.SecondaryECUs {
		for i := len(filtered) - 1; i >= 0; i-- {
			if filtered[i].HasHardwareID(hwid) {
				assignments[hwid] = filtered[i]
				break
			}
		}
	}
	if len(assignments) == 0 {
		return
	}

	if err := RegisterSecondaryECUs(ctx, c.httpClient, c.cfg.TLSServerBase, assignments); err != nil {
		c.logger.Warn("secondary ecu registration failed, will retry on next check-in", "error", err)
		return
	}

	c.mu.Lock()
	c.ecusRegistered = true
	c.mu.Unlock()
}

// CheckInLocal runs the same CheckIn pipeline with localMetadata swapped in
// as the metadata source for the duration of the call, for offline
// verification and local testing (SPEC_FULL.md supplement). Only the
// metadata source is replaced; the rootfs and apps paths are unchanged.
func (c *Controller) CheckInLocal(ctx context.Context, localMetadata MetadataSource) ([]model.Target, error) {
	prev := c.metadata
	c.metadata = localMetadata
	defer func() { c.metadata = prev }()
	return c.CheckIn(ctx)
}

func (c *Controller) acceptedHardwareIDs() []string {
	ids := []string{c.cfg.PrimaryHardwareID}
	return append(ids, c.cfg.SecondaryECUs...)
}

func (c *Controller) filterAndSort(targets []model.Target) []model.Target {
	accepted := c.acceptedHardwareIDs()

	var out []model.Target
	for _, t := range targets {
		if !t.HasAnyTag(c.cfg.Tags) {
			continue
		}
		matched := false
		for _, hwid := range accepted {
			if t.HasHardwareID(hwid) {
				matched = true
				break
			}
		}
		if matched {
			out = append(out, t)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Version < out[j].Version
	})

	return out
}

// GetLatest iterates the cached, filtered target list in reverse and
// returns the first target whose first hardware id equals hwid (§4.G).
func (c *Controller) GetLatest(hwid string) (model.Target, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.cachedTargets) - 1; i >= 0; i-- {
		if c.cachedTargets[i].PrimaryHardwareID() == hwid {
			return c.cachedTargets[i], true
		}
	}
	return model.Target{}, false
}

// GetCurrent returns the currently booted target.
func (c *Controller) GetCurrent(ctx context.Context) (model.Target, error) {
	return c.deploys.CurrentTarget(ctx)
}

// IsInstallationInProgress reports whether an install traversal is already
// underway; starting a second is rejected by the caller (§4.G).
func (c *Controller) IsInstallationInProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inProgress
}

// GetPendingTarget returns the staged-but-not-yet-booted target, if any.
func (c *Controller) GetPendingTarget(ctx context.Context) (model.Target, bool, error) {
	return c.deploys.PendingTarget(ctx)
}

// IsRollback reports whether target's version is older than the currently
// booted target's version.
func (c *Controller) IsRollback(ctx context.Context, target model.Target) (bool, error) {
	current, err := c.GetCurrent(ctx)
	if err != nil {
		return false, err
	}
	return target.Version < current.Version, nil
}

// ErrDowngradeAttempt is returned by EnsureNotDowngrade when target's
// version is older than the currently booted target's and downgrades
// haven't been explicitly allowed (§4.G version-downgrade policy).
var ErrDowngradeAttempt = fmt.Errorf("InstallDowngradeAttempt")

// EnsureNotDowngrade enforces the version-downgrade policy: a target whose
// version is lower than the currently booted target's is refused unless
// forceDowngrade is set.
func (c *Controller) EnsureNotDowngrade(ctx context.Context, target model.Target, forceDowngrade bool) error {
	if forceDowngrade {
		return nil
	}
	current, err := c.GetCurrent(ctx)
	if err != nil {
		return fmt.Errorf("get current target: %w", err)
	}
	if target.Version < current.Version {
		return ErrDowngradeAttempt
	}
	return nil
}
