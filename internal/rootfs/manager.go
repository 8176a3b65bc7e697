// Package rootfs implements the Rootfs Tree Manager (§4.F): the
// "fetch then stage then notify" pipeline that pulls a target's commit into
// the content-addressed tree and installs it as the pending deployment.
// Orchestration shape grounded on the teacher's internal/daemon/repo_updater.go
// (fetch, check, notify, accumulate-and-continue on failure), re-targeted
// from git repositories to ostree-style commits.
package rootfs

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/edgefleet/otaupdater/internal/bootloader"
	"github.com/edgefleet/otaupdater/internal/delta"
	"github.com/edgefleet/otaupdater/internal/diskstat"
	"github.com/edgefleet/otaupdater/internal/model"
	"github.com/edgefleet/otaupdater/internal/remote"
)

// DownloadResult is the outcome of Manager.Download.
type DownloadResult struct {
	Kind        model.InstallationResultKind
	Description string
}

var noSpacePatterns = []*regexp.Regexp{
	regexp.MustCompile(`would be exceeded, at least`),
	regexp.MustCompile(`min-free-space-size`),
	regexp.MustCompile(`min-free-space-percent`),
	regexp.MustCompile(`Delta requires .* free space, but only`),
}

// isNoSpaceFailure reports whether a tree-tool pull error description
// indicates the admission/pull-time disk-full condition (§4.F step 2e).
func isNoSpaceFailure(desc string) bool {
	for _, p := range noSpacePatterns {
		if p.MatchString(desc) {
			return true
		}
	}
	return false
}

// Manager implements download/install for rootfs targets.
type Manager struct {
	tool      Tool
	selector  *remote.Selector
	resolver  *delta.Resolver
	prober    *diskstat.Prober
	interlock *bootloader.Interlock

	sysroot          string
	baseOstreeServer string
	watermarkPercent int

	logger *slog.Logger
}

// NewManager builds a Manager.
func NewManager(
	tool Tool,
	selector *remote.Selector,
	resolver *delta.Resolver,
	prober *diskstat.Prober,
	interlock *bootloader.Interlock,
	sysroot, baseOstreeServer string,
	watermarkPercent int,
	logger *slog.Logger,
) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		tool:             tool,
		selector:         selector,
		resolver:         resolver,
		prober:           prober,
		interlock:        interlock,
		sysroot:          sysroot,
		baseOstreeServer: baseOstreeServer,
		watermarkPercent: watermarkPercent,
		logger:           logger,
	}
}

// Download pulls target's commit into the tree, trying remotes in the
// Remote Selector's precedence order and stopping at the first success or
// the first disk-space failure (§4.F).
func (m *Manager) Download(ctx context.Context, target model.Target, currentHash string) DownloadResult {
	remotes := m.selector.GetRemotes(ctx, m.baseOstreeServer, target.Name)

	var failures []string

	for _, r := range remotes {
		configured, err := m.tool.IsRemoteConfigured(ctx, r.Name)
		if err != nil {
			failures = append(failures, err.Error())
			continue
		}
		if !configured {
			tlsMaterial := tlsMaterialFields(r.TLS)
			if err := m.tool.RegisterRemote(ctx, r.Name, r.BaseURL, tlsMaterial); err != nil {
				failures = append(failures, err.Error())
				continue
			}
		}

		if fits, stop := m.checkDeltaAdmission(ctx, target, currentHash, r); stop {
			if !fits {
				return DownloadResult{Kind: model.InstallDownloadFailedNoSpace, Description: "insufficient disk space for delta"}
			}
		}

		if err := m.tool.Pull(ctx, r.Name, target.Hash); err == nil {
			return DownloadResult{Kind: model.InstallOk, Description: "pulled " + target.Hash + " from " + r.Name}
		} else if isNoSpaceFailure(err.Error()) {
			return DownloadResult{Kind: model.InstallDownloadFailedNoSpace, Description: err.Error()}
		} else {
			failures = append(failures, err.Error())
		}
	}

	return DownloadResult{Kind: model.InstallDownloadFailed, Description: strings.Join(failures, "; ")}
}

// checkDeltaAdmission looks up a delta stat for the remote and, if found,
// performs the admission check. The second return value reports whether an
// admission check ran (a delta stat was found and storage was probed); the
// first reports whether the update fits. The caller stops without pulling
// only when a check ran and did not fit; every other case returns
// (true, false) or (true, true) and the pull proceeds normally.
func (m *Manager) checkDeltaAdmission(ctx context.Context, target model.Target, currentHash string, r model.Remote) (fits bool, stop bool) {
	ref, ok := m.resolver.FindRef(target.CustomFields)
	if !ok {
		return true, false
	}
	raw, ok := m.resolver.Download(ctx, *ref, r)
	if !ok {
		m.logger.Warn("delta stats unavailable for remote, proceeding without size check", "remote", r.Name)
		return true, false
	}
	stat, ok := m.resolver.FindStat(raw, currentHash, target.Hash)
	if !ok {
		m.logger.Warn("delta stats entry not found for from/to pair, proceeding without size check", "remote", r.Name)
		return true, false
	}

	storageStat := m.prober.Stat(m.sysroot)
	if storageStat.IsErr() {
		m.logger.Warn("storage probe failed during admission check, proceeding without size check", "error", storageStat.UnwrapErr())
		return true, false
	}

	updateStat := diskstat.ToUpdateStat(storageStat.Unwrap(), m.watermarkPercent, stat.UncompressedSize)
	admits := diskstat.Admits(updateStat, storageStat.Unwrap().BlockSize)
	return admits, true
}

func tlsMaterialFields(tls *model.TLSMaterial) map[string]string {
	if tls == nil {
		return nil
	}
	fields := map[string]string{}
	if tls.CACert != "" {
		fields["tls-ca-path"] = tls.CACert
	}
	if tls.ClientCert != "" {
		fields["tls-client-cert-path"] = tls.ClientCert
	}
	if tls.ClientKey != "" {
		fields["tls-client-key-path"] = tls.ClientKey
	}
	return fields
}

// Install stages target as the pending deployment, following §4.F's
// current/pending comparison and the "already installed" undeploy rewrite
// rule.
func (m *Manager) Install(ctx context.Context, target model.Target, current model.Target, pendingHash string) model.InstallationResult {
	needsInstall := current.Hash != target.Hash ||
		(pendingHash != "" && pendingHash != target.Hash)

	if !needsInstall {
		return model.Ok("already installed")
	}

	if current.Hash != target.Hash && m.interlock != nil && m.interlock.IsUpdateSupported() {
		verify := m.interlock.VerifyBootloaderUpdate(target)
		if !verify.IsOk() {
			return verify
		}
	}

	// Non-atomic notice; duplicate/false-positive notifications are
	// tolerated because of rollback support downstream.
	m.notifyUpdate(ctx, target)

	needsCompletion, err := m.tool.Deploy(ctx, target.Hash)
	if err != nil {
		return model.NewResult(model.InstallInstallFailed, err.Error())
	}

	result := model.Ok("deployed " + target.Hash)
	if needsCompletion {
		result = model.NewResult(model.InstallNeedCompletion, "reboot required to observe new deployment")
	}

	if current.Hash == target.Hash && result.Kind == model.InstallNeedCompletion {
		result = model.Ok("OSTree hash already installed, same as current")
		m.notifyUpdate(ctx, target)
	}

	m.notifyInstall(ctx)
	return result
}

func (m *Manager) notifyUpdate(ctx context.Context, target model.Target) {
	// Only logs the notice at debug; no bootloader or tree-tool call is
	// made here.
	m.logger.Debug("update notify", "target", target.Hash)
}

func (m *Manager) notifyInstall(ctx context.Context) {
	current, err := m.tool.CurrentCommit(ctx)
	if err != nil {
		m.logger.Warn("install notify: failed to reload sysroot view", "error", err)
		return
	}
	if current == "" {
		m.logger.Warn("install notify: sysroot view did not change")
	}
}

// BootstrapInitialTarget synthesizes an initial Target for a fresh device
// whose current deployment is "unknown", using hwid as its sole hardware id
// (§4.F). Failure is logged and swallowed, matching the contract.
func (m *Manager) BootstrapInitialTarget(ctx context.Context, hwid string) (model.Target, bool) {
	current, err := m.tool.CurrentCommit(ctx)
	if err != nil || current == "" {
		m.logger.Warn("initial-target bootstrap: could not read current commit", "error", err)
		return model.Target{}, false
	}
	return model.Target{
		Name:        "initial-" + current,
		Hash:        current,
		Version:     0,
		HardwareIDs: []string{hwid},
	}, true
}
