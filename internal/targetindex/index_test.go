package targetindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgefleet/otaupdater/internal/model"
)

type fakeTool struct {
	current    string
	currentErr error
	pending    string
	hasPending bool
	pendingErr error
}

func (f *fakeTool) IsRemoteConfigured(ctx context.Context, name string) (bool, error) {
	return true, nil
}
func (f *fakeTool) RegisterRemote(ctx context.Context, name, url string, tlsMaterial map[string]string) error {
	return nil
}
func (f *fakeTool) Pull(ctx context.Context, remoteName, commitHash string) error { return nil }
func (f *fakeTool) CurrentCommit(ctx context.Context) (string, error) {
	return f.current, f.currentErr
}
func (f *fakeTool) PendingCommit(ctx context.Context) (string, bool, error) {
	return f.pending, f.hasPending, f.pendingErr
}
func (f *fakeTool) Deploy(ctx context.Context, commitHash string) (bool, error) { return false, nil }

func TestIndexUpdateAndByHash(t *testing.T) {
	idx := New()
	idx.Update([]model.Target{
		{Name: "a", Hash: "hash-a", Version: 1},
		{Name: "b", Hash: "hash-b", Version: 2},
	})

	t1, ok := idx.ByHash("hash-a")
	require.True(t, ok)
	require.Equal(t, "a", t1.Name)

	_, ok = idx.ByHash("missing")
	require.False(t, ok)

	require.Len(t, idx.All(), 2)
}

func TestDeploymentAdapterResolvesIndexedCommit(t *testing.T) {
	idx := New()
	idx.Add(model.Target{Name: "known", Hash: "deadbeef", Version: 5})

	tool := &fakeTool{current: "deadbeef"}
	adapter := NewDeploymentAdapter(tool, idx, "hw-1")

	current, err := adapter.CurrentTarget(context.Background())
	require.NoError(t, err)
	require.Equal(t, "known", current.Name)
	require.Equal(t, int64(5), current.Version)
}

func TestDeploymentAdapterPlaceholdersUnindexedCommit(t *testing.T) {
	idx := New()
	tool := &fakeTool{current: "unseen-hash"}
	adapter := NewDeploymentAdapter(tool, idx, "hw-1")

	current, err := adapter.CurrentTarget(context.Background())
	require.NoError(t, err)
	require.Equal(t, "unindexed-unseen-hash", current.Name)
	require.Equal(t, int64(-1), current.Version)
	require.Equal(t, []string{"hw-1"}, current.HardwareIDs)
}

func TestDeploymentAdapterPendingTarget(t *testing.T) {
	idx := New()
	tool := &fakeTool{pending: "pending-hash", hasPending: true}
	adapter := NewDeploymentAdapter(tool, idx, "hw-1")

	pending, ok, err := adapter.PendingTarget(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "unindexed-pending-hash", pending.Name)

	tool2 := &fakeTool{hasPending: false}
	adapter2 := NewDeploymentAdapter(tool2, idx, "hw-1")
	_, ok, err = adapter2.PendingTarget(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

type fakeSource struct {
	targets []model.Target
	err     error
}

func (f *fakeSource) Targets(ctx context.Context) ([]model.Target, error) {
	return f.targets, f.err
}

func TestWrapUpdatesIndexOnSuccess(t *testing.T) {
	idx := New()
	inner := &fakeSource{targets: []model.Target{{Name: "x", Hash: "hx", Version: 1}}}
	wrapped := Wrap(inner, idx)

	got, err := wrapped.Targets(context.Background())
	require.NoError(t, err)
	require.Equal(t, inner.targets, got)

	_, ok := idx.ByHash("hx")
	require.True(t, ok)
}

func TestWrapLeavesIndexUntouchedOnFailure(t *testing.T) {
	idx := New()
	inner := &fakeSource{err: context.DeadlineExceeded}
	wrapped := Wrap(inner, idx)

	_, err := wrapped.Targets(context.Background())
	require.Error(t, err)
	require.Empty(t, idx.All())
}
