package controller

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgefleet/otaupdater/internal/model"
	"github.com/edgefleet/otaupdater/internal/state"
	"github.com/edgefleet/otaupdater/internal/util/sets"
)

type fakeMetadataSource struct {
	targets []model.Target
	err     error
}

func (f *fakeMetadataSource) Targets(ctx context.Context) ([]model.Target, error) {
	return f.targets, f.err
}

type fakeDeploymentSource struct {
	current    model.Target
	currentErr error
	pending    model.Target
	hasPending bool
	pendingErr error
}

func (f *fakeDeploymentSource) CurrentTarget(ctx context.Context) (model.Target, error) {
	return f.current, f.currentErr
}

func (f *fakeDeploymentSource) PendingTarget(ctx context.Context) (model.Target, bool, error) {
	return f.pending, f.hasPending, f.pendingErr
}

type fakeAppSyncer struct {
	err   error
	calls []model.Target
}

func (f *fakeAppSyncer) SyncApps(ctx context.Context, target model.Target) error {
	f.calls = append(f.calls, target)
	return f.err
}

type fakeVersionsStore struct {
	entries    []state.InstalledVersion
	recordErr  error
	finalized  []string
}

func (f *fakeVersionsStore) Record(ctx context.Context, v state.InstalledVersion) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.entries = append(f.entries, v)
	return nil
}

func (f *fakeVersionsStore) MarkFinalized(ctx context.Context, hash string) error {
	f.finalized = append(f.finalized, hash)
	return nil
}

func (f *fakeVersionsStore) List(ctx context.Context) ([]state.InstalledVersion, error) {
	return f.entries, nil
}

func (f *fakeVersionsStore) RollbackCandidate(ctx context.Context, olderThanVersion int64) (model.Target, bool, error) {
	return state.RollbackCandidateFrom(f.entries, olderThanVersion)
}

func (f *fakeVersionsStore) Close() error { return nil }

func targetWith(name, hash string, version int64, tags []string, hwids []string) model.Target {
	return model.Target{
		Name:        name,
		Hash:        hash,
		Version:     version,
		HardwareIDs: hwids,
		Tags:        sets.New(tags...),
	}
}

func newTestController(cfg Config, metadata MetadataSource, deploys DeploymentSource, apps AppSyncer, versions state.InstalledVersionsStore) *Controller {
	return New(cfg, metadata, deploys, nil, apps, versions, nil, nil)
}

func TestCheckInFiltersByTagAndHardwareIDThenSortsByVersion(t *testing.T) {
	targets := []model.Target{
		targetWith("b", "hash-b", 2, []string{"devel"}, []string{"raspberrypi4-64"}),
		targetWith("a", "hash-a", 1, []string{"devel"}, []string{"raspberrypi4-64"}),
		targetWith("wrong-tag", "hash-c", 3, []string{"master"}, []string{"raspberrypi4-64"}),
		targetWith("wrong-hwid", "hash-d", 4, []string{"devel"}, []string{"other-board"}),
	}
	metadata := &fakeMetadataSource{targets: targets}
	cfg := Config{PrimaryHardwareID: "raspberrypi4-64", Tags: []string{"devel"}}
	c := newTestController(cfg, metadata, &fakeDeploymentSource{}, nil, nil)

	filtered, err := c.CheckIn(context.Background())
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	require.Equal(t, "a", filtered[0].Name)
	require.Equal(t, "b", filtered[1].Name)
	require.Equal(t, StateCheckedIn, c.Status())
}

func TestCheckInAcceptsSecondaryHardwareIDs(t *testing.T) {
	targets := []model.Target{
		targetWith("secondary", "hash-s", 1, []string{"devel"}, []string{"secondary-board"}),
	}
	metadata := &fakeMetadataSource{targets: targets}
	cfg := Config{PrimaryHardwareID: "raspberrypi4-64", SecondaryECUs: []string{"secondary-board"}, Tags: []string{"devel"}}
	c := newTestController(cfg, metadata, &fakeDeploymentSource{}, nil, nil)

	filtered, err := c.CheckIn(context.Background())
	require.NoError(t, err)
	require.Len(t, filtered, 1)
}

func TestCheckInPropagatesMetadataError(t *testing.T) {
	metadata := &fakeMetadataSource{err: fmt.Errorf("boom")}
	c := newTestController(Config{}, metadata, &fakeDeploymentSource{}, nil, nil)
	_, err := c.CheckIn(context.Background())
	require.Error(t, err)
}

func TestGetLatestMatchesPrimaryHardwareIDInReverseOrder(t *testing.T) {
	metadata := &fakeMetadataSource{targets: []model.Target{
		targetWith("a", "hash-a", 1, []string{"devel"}, []string{"raspberrypi4-64"}),
		targetWith("b", "hash-b", 2, []string{"devel"}, []string{"raspberrypi4-64"}),
	}}
	cfg := Config{PrimaryHardwareID: "raspberrypi4-64", Tags: []string{"devel"}}
	c := newTestController(cfg, metadata, &fakeDeploymentSource{}, nil, nil)
	_, err := c.CheckIn(context.Background())
	require.NoError(t, err)

	latest, ok := c.GetLatest("raspberrypi4-64")
	require.True(t, ok)
	require.Equal(t, "b", latest.Name)

	_, ok = c.GetLatest("unknown-hwid")
	require.False(t, ok)
}

func TestGetCurrentDelegatesToDeploymentSource(t *testing.T) {
	current := targetWith("current", "hash-current", 1, nil, nil)
	c := newTestController(Config{}, &fakeMetadataSource{}, &fakeDeploymentSource{current: current}, nil, nil)
	got, err := c.GetCurrent(context.Background())
	require.NoError(t, err)
	require.Equal(t, current, got)
}

func TestGetPendingTargetDelegatesToDeploymentSource(t *testing.T) {
	pending := targetWith("pending", "hash-pending", 2, nil, nil)
	c := newTestController(Config{}, &fakeMetadataSource{}, &fakeDeploymentSource{pending: pending, hasPending: true}, nil, nil)
	got, ok, err := c.GetPendingTarget(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, pending, got)
}

func TestIsInstallationInProgressReflectsInstallerLifecycle(t *testing.T) {
	c := newTestController(Config{}, &fakeMetadataSource{}, &fakeDeploymentSource{}, nil, nil)
	require.False(t, c.IsInstallationInProgress())

	installer, err := c.Installer(targetWith("t", "hash-t", 1, nil, nil), "test")
	require.NoError(t, err)
	require.True(t, c.IsInstallationInProgress())

	_, err = c.Installer(targetWith("t2", "hash-t2", 2, nil, nil), "test")
	require.Error(t, err, "a second concurrent installer must be rejected")

	installer.release()
	require.False(t, c.IsInstallationInProgress())
}

func TestIsRollbackComparesTargetAgainstCurrentVersion(t *testing.T) {
	current := targetWith("current", "hash-current", 5, nil, nil)
	c := newTestController(Config{}, &fakeMetadataSource{}, &fakeDeploymentSource{current: current}, nil, nil)

	older := targetWith("older", "hash-older", 4, nil, nil)
	isRollback, err := c.IsRollback(context.Background(), older)
	require.NoError(t, err)
	require.True(t, isRollback)

	newer := targetWith("newer", "hash-newer", 6, nil, nil)
	isRollback, err = c.IsRollback(context.Background(), newer)
	require.NoError(t, err)
	require.False(t, isRollback)
}

// TestEnsureNotDowngradeRefusesOlderVersionsUnlessForced locks in the
// downgrade-safety property: a candidate whose version is lower than the
// currently booted target's is refused unless forceDowngrade is set.
func TestEnsureNotDowngradeRefusesOlderVersionsUnlessForced(t *testing.T) {
	current := targetWith("current", "hash-current", 5, nil, nil)
	c := newTestController(Config{}, &fakeMetadataSource{}, &fakeDeploymentSource{current: current}, nil, nil)

	older := targetWith("older", "hash-older", 4, nil, nil)

	t.Run("rejected by default", func(t *testing.T) {
		err := c.EnsureNotDowngrade(context.Background(), older, false)
		require.ErrorIs(t, err, ErrDowngradeAttempt)
	})

	t.Run("allowed when forced", func(t *testing.T) {
		err := c.EnsureNotDowngrade(context.Background(), older, true)
		require.NoError(t, err)
	})

	t.Run("equal or newer version is never a downgrade", func(t *testing.T) {
		sameOrNewer := targetWith("same", "hash-same", 5, nil, nil)
		err := c.EnsureNotDowngrade(context.Background(), sameOrNewer, false)
		require.NoError(t, err)
	})
}

func TestRegisterSecondaryECUsOnceRegistersOnFirstMatchingCheckIn(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := newECURegistrationServer(t, &gotPath, &gotBody)
	defer srv.Close()

	targets := []model.Target{
		targetWith("sec", "hash-sec", 1, []string{"devel"}, []string{"secondary-board"}),
	}
	metadata := &fakeMetadataSource{targets: targets}
	cfg := Config{
		PrimaryHardwareID: "raspberrypi4-64",
		SecondaryECUs:     []string{"secondary-board"},
		Tags:              []string{"devel"},
		TLSServerBase:     srv.URL,
	}
	c := New(cfg, metadata, &fakeDeploymentSource{}, nil, nil, nil, srv.Client(), nil)

	_, err := c.CheckIn(context.Background())
	require.NoError(t, err)
	require.Equal(t, "/ecus", gotPath)
	require.Contains(t, string(gotBody), "secondary-board")

	c.mu.Lock()
	registered := c.ecusRegistered
	c.mu.Unlock()
	require.True(t, registered)
}

func TestRegisterSecondaryECUsOnceSkippedWithoutSecondaryConfig(t *testing.T) {
	called := false
	srv := newCountingECUServer(t, &called)
	defer srv.Close()

	metadata := &fakeMetadataSource{targets: []model.Target{
		targetWith("t", "hash-t", 1, []string{"devel"}, []string{"raspberrypi4-64"}),
	}}
	cfg := Config{PrimaryHardwareID: "raspberrypi4-64", Tags: []string{"devel"}, TLSServerBase: srv.URL}
	c := New(cfg, metadata, &fakeDeploymentSource{}, nil, nil, nil, srv.Client(), nil)

	_, err := c.CheckIn(context.Background())
	require.NoError(t, err)
	require.False(t, called)
}
