package targetindex

import (
	"context"
	"fmt"

	"github.com/edgefleet/otaupdater/internal/model"
	"github.com/edgefleet/otaupdater/internal/rootfs"
)

// DeploymentAdapter implements controller.DeploymentSource by pairing the
// tree tool's raw commit-hash queries with an Index of targets seen at
// check-in, so the controller always sees full model.Target values rather
// than bare hashes.
type DeploymentAdapter struct {
	tool  rootfs.Tool
	index *Index
	hwid  string
}

// NewDeploymentAdapter builds a DeploymentAdapter. hwid is used to synthesize
// a placeholder Target when a commit hash isn't (yet) present in the index,
// e.g. immediately after a fresh-device bootstrap before the first check-in.
func NewDeploymentAdapter(tool rootfs.Tool, index *Index, hwid string) *DeploymentAdapter {
	return &DeploymentAdapter{tool: tool, index: index, hwid: hwid}
}

// CurrentTarget resolves the tree tool's currently booted commit against the
// index, falling back to a minimal placeholder Target if the commit is
// unknown (e.g. a device that booted a commit never seen in any check-in).
func (a *DeploymentAdapter) CurrentTarget(ctx context.Context) (model.Target, error) {
	hash, err := a.tool.CurrentCommit(ctx)
	if err != nil {
		return model.Target{}, fmt.Errorf("read current commit: %w", err)
	}
	if hash == "" {
		return model.Target{}, nil
	}
	if t, ok := a.index.ByHash(hash); ok {
		return t, nil
	}
	return a.placeholder(hash), nil
}

// PendingTarget resolves the tree tool's staged-but-unbooted commit, if any,
// the same way CurrentTarget does.
func (a *DeploymentAdapter) PendingTarget(ctx context.Context) (model.Target, bool, error) {
	hash, ok, err := a.tool.PendingCommit(ctx)
	if err != nil {
		return model.Target{}, false, fmt.Errorf("read pending commit: %w", err)
	}
	if !ok {
		return model.Target{}, false, nil
	}
	if t, found := a.index.ByHash(hash); found {
		return t, true, nil
	}
	return a.placeholder(hash), true, nil
}

// placeholder synthesizes a minimal, version -1 Target for a commit hash the
// index has never recorded, matching §4.G's "unparseable versions become -1"
// treatment rather than failing the lookup outright.
func (a *DeploymentAdapter) placeholder(hash string) model.Target {
	return model.Target{
		Name:        "unindexed-" + hash,
		Hash:        hash,
		Version:     -1,
		HardwareIDs: []string{a.hwid},
	}
}
