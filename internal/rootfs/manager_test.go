package rootfs

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgefleet/otaupdater/internal/bootloader"
	"github.com/edgefleet/otaupdater/internal/delta"
	"github.com/edgefleet/otaupdater/internal/diskstat"
	"github.com/edgefleet/otaupdater/internal/model"
	"github.com/edgefleet/otaupdater/internal/remote"
)

// fakeTool implements Tool for manager tests.
type fakeTool struct {
	configured      bool
	configureErr    error
	pullErr         error
	deployNeedsBoot bool
	deployErr       error
	currentCommit   string
}

func (f *fakeTool) IsRemoteConfigured(ctx context.Context, name string) (bool, error) {
	return f.configured, f.configureErr
}

func (f *fakeTool) RegisterRemote(ctx context.Context, name, url string, tlsMaterial map[string]string) error {
	return nil
}

func (f *fakeTool) Pull(ctx context.Context, remoteName, commitHash string) error {
	return f.pullErr
}

func (f *fakeTool) CurrentCommit(ctx context.Context) (string, error) {
	return f.currentCommit, nil
}

func (f *fakeTool) PendingCommit(ctx context.Context) (string, bool, error) {
	return "", false, nil
}

func (f *fakeTool) Deploy(ctx context.Context, commitHash string) (bool, error) {
	if f.deployErr != nil {
		return false, f.deployErr
	}
	return f.deployNeedsBoot, nil
}

func newTestManager(tool Tool, interlock *bootloader.Interlock) *Manager {
	selector := remote.NewSelector(nil, nil)
	resolver := delta.NewResolver(nil, nil)
	prober := diskstat.NewProber()
	return NewManager(tool, selector, resolver, prober, interlock, "/sysroot", "file:///ostree_repo", 90, nil)
}

func TestManagerDownloadPullsFromPrimaryRemote(t *testing.T) {
	tool := &fakeTool{configured: true}
	mgr := newTestManager(tool, nil)
	target := model.Target{Name: "t", Hash: "new-hash"}

	result := mgr.Download(context.Background(), target, "current-hash")
	require.Equal(t, model.InstallOk, result.Kind)
}

func TestManagerDownloadRegistersRemoteWhenNotConfigured(t *testing.T) {
	tool := &fakeTool{configured: false}
	mgr := newTestManager(tool, nil)
	target := model.Target{Name: "t", Hash: "new-hash"}

	result := mgr.Download(context.Background(), target, "current-hash")
	require.Equal(t, model.InstallOk, result.Kind)
}

func TestManagerDownloadDetectsNoSpaceFailure(t *testing.T) {
	tool := &fakeTool{configured: true, pullErr: fmt.Errorf("min-free-space-size would be exceeded, at least 40MB needed")}
	mgr := newTestManager(tool, nil)
	target := model.Target{Name: "t", Hash: "new-hash"}

	result := mgr.Download(context.Background(), target, "current-hash")
	require.Equal(t, model.InstallDownloadFailedNoSpace, result.Kind)
}

func TestManagerDownloadReturnsDownloadFailedWhenAllRemotesFail(t *testing.T) {
	tool := &fakeTool{configured: true, pullErr: fmt.Errorf("network unreachable")}
	mgr := newTestManager(tool, nil)
	target := model.Target{Name: "t", Hash: "new-hash"}

	result := mgr.Download(context.Background(), target, "current-hash")
	require.Equal(t, model.InstallDownloadFailed, result.Kind)
}

// TestManagerInstallAlreadyInstalledIsIdempotent covers the no-op path:
// current.Hash == target.Hash and there is no pending deployment, so
// Install must short-circuit without touching the tree tool.
func TestManagerInstallAlreadyInstalledIsIdempotent(t *testing.T) {
	tool := &fakeTool{}
	mgr := newTestManager(tool, nil)
	same := model.Target{Name: "same", Hash: "hash-same"}

	result := mgr.Install(context.Background(), same, same, "")
	require.True(t, result.IsOk())
	require.Equal(t, "already installed", result.Description)
}

// TestManagerInstallPendingUndeployRewrite covers §8 scenario 8: current and
// target share a hash, but a *different* hash is staged as pending. Install
// must still proceed (the pending target differs), and a NeedCompletion
// result must be rewritten to an Ok "same as current" description, with
// updateNotify firing twice.
func TestManagerInstallPendingUndeployRewrite(t *testing.T) {
	tool := &fakeTool{deployNeedsBoot: true}
	mgr := newTestManager(tool, nil)
	current := model.Target{Name: "h1", Hash: "hash-h1"}
	target := model.Target{Name: "h1", Hash: "hash-h1"}

	result := mgr.Install(context.Background(), target, current, "hash-h2")
	require.True(t, result.IsOk())
	require.Equal(t, "OSTree hash already installed, same as current", result.Description)
}

func TestManagerInstallDeploysNewTargetAndNeedsReboot(t *testing.T) {
	tool := &fakeTool{deployNeedsBoot: true}
	mgr := newTestManager(tool, nil)
	current := model.Target{Name: "current", Hash: "hash-current"}
	target := model.Target{Name: "target", Hash: "hash-target"}

	result := mgr.Install(context.Background(), target, current, "")
	require.Equal(t, model.InstallNeedCompletion, result.Kind)
}

func TestManagerInstallPropagatesDeployError(t *testing.T) {
	tool := &fakeTool{deployErr: fmt.Errorf("deploy failed")}
	mgr := newTestManager(tool, nil)
	current := model.Target{Name: "current", Hash: "hash-current"}
	target := model.Target{Name: "target", Hash: "hash-target"}

	result := mgr.Install(context.Background(), target, current, "")
	require.Equal(t, model.InstallInstallFailed, result.Kind)
}

// fakeBootloaderReader implements bootloader.Reader for the gate tests
// below.
type fakeBootloaderReader struct {
	updateSupported      bool
	rollbackProtection   bool
	currentVersion       string
	currentVersionValid  bool
	targetVersion        string
	targetVersionErr     error
}

func (f *fakeBootloaderReader) IsUpdateSupported() bool           { return f.updateSupported }
func (f *fakeBootloaderReader) IsUpdateInProgress() bool          { return false }
func (f *fakeBootloaderReader) IsRollbackProtectionEnabled() bool { return f.rollbackProtection }
func (f *fakeBootloaderReader) GetCurrentVersion() (string, bool) {
	return f.currentVersion, f.currentVersionValid
}
func (f *fakeBootloaderReader) GetTargetVersion(commitHash string) (string, error) {
	return f.targetVersion, f.targetVersionErr
}

// TestManagerInstallSkipsBootloaderGateWhenUpdateNotSupported locks in the
// §4.F gate literal condition: the interlock only runs when the reader
// reports update support, not merely whenever an *Interlock is configured.
func TestManagerInstallSkipsBootloaderGateWhenUpdateNotSupported(t *testing.T) {
	reader := &fakeBootloaderReader{
		updateSupported:     false,
		rollbackProtection:  true,
		currentVersion:      "5",
		currentVersionValid: true,
		targetVersion:       "4", // would be rejected as a rollback if the gate ran
	}
	interlock := bootloader.NewInterlock(reader, false, nil)
	tool := &fakeTool{deployNeedsBoot: true}
	mgr := newTestManager(tool, interlock)

	current := model.Target{Name: "current", Hash: "hash-current"}
	target := model.Target{Name: "target", Hash: "hash-target"}

	result := mgr.Install(context.Background(), target, current, "")
	require.Equal(t, model.InstallNeedCompletion, result.Kind, "gate must be skipped when IsUpdateSupported is false")
}

func TestManagerInstallAppliesBootloaderGateWhenUpdateSupported(t *testing.T) {
	reader := &fakeBootloaderReader{
		updateSupported:     true,
		rollbackProtection:  true,
		currentVersion:      "5",
		currentVersionValid: true,
		targetVersion:       "4",
	}
	interlock := bootloader.NewInterlock(reader, false, nil)
	tool := &fakeTool{deployNeedsBoot: true}
	mgr := newTestManager(tool, interlock)

	current := model.Target{Name: "current", Hash: "hash-current"}
	target := model.Target{Name: "target", Hash: "hash-target"}

	result := mgr.Install(context.Background(), target, current, "")
	require.Equal(t, model.InstallInstallFailed, result.Kind)
	require.Contains(t, result.Description, "bootloader rollback from version 5 to 4")
}

func TestBootstrapInitialTargetUsesCurrentCommitAndHardwareID(t *testing.T) {
	tool := &fakeTool{currentCommit: "current-hash"}
	mgr := newTestManager(tool, nil)

	target, ok := mgr.BootstrapInitialTarget(context.Background(), "raspberrypi4-64")
	require.True(t, ok)
	require.Equal(t, "current-hash", target.Hash)
	require.Equal(t, []string{"raspberrypi4-64"}, target.HardwareIDs)
}

func TestBootstrapInitialTargetFailsWhenNoCurrentCommit(t *testing.T) {
	tool := &fakeTool{currentCommit: ""}
	mgr := newTestManager(tool, nil)

	_, ok := mgr.BootstrapInitialTarget(context.Background(), "raspberrypi4-64")
	require.False(t, ok)
}
