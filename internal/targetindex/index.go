// Package targetindex keeps the most recently seen-at-check-in targets
// addressable by content hash, so the Update Controller's DeploymentSource
// collaborator can turn the tree tool's raw commit hashes (all it knows
// about) back into full model.Target values. Grounded on the teacher's
// internal/build/delta/manager.go stateless-Manager shape: a small mutex
// guarded lookup table with no behavior beyond storing what it was given.
package targetindex

import (
	"sync"

	"github.com/edgefleet/otaupdater/internal/model"
)

// Index maps a Target's content hash to the last Target value seen for it.
type Index struct {
	mu     sync.RWMutex
	byHash map[string]model.Target
}

// New builds an empty Index.
func New() *Index {
	return &Index{byHash: make(map[string]model.Target)}
}

// Update records every target in targets, keyed by hash. Call after every
// successful check-in.
func (idx *Index) Update(targets []model.Target) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, t := range targets {
		idx.byHash[t.Hash] = t
	}
}

// Add records a single target, e.g. the bootstrapped initial target for a
// fresh device.
func (idx *Index) Add(t model.Target) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.byHash[t.Hash] = t
}

// ByHash looks up a previously recorded target by content hash.
func (idx *Index) ByHash(hash string) (model.Target, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	t, ok := idx.byHash[hash]
	return t, ok
}

// All returns every recorded target, for callers that want to fall back to
// a previous check-in's candidates (e.g. CheckinOkCached).
func (idx *Index) All() []model.Target {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]model.Target, 0, len(idx.byHash))
	for _, t := range idx.byHash {
		out = append(out, t)
	}
	return out
}
