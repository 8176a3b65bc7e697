// Package state persists the installed-versions history the Update
// Controller consults to find a rollback target (§4.G). Two narrow
// implementations are provided — a JSON file store and a sqlite-backed
// store — mirroring the teacher's internal/state package, which offers a
// JSONStore alongside narrow per-entity sub-interfaces
// (internal/state/json_store.go), generalized here to a single narrow
// interface instead of per-entity stores since this domain has exactly one
// entity worth persisting.
package state

import (
	"context"
	"time"

	"github.com/edgefleet/otaupdater/internal/model"
)

// InstalledVersion records that a target was installed (and, once
// confirmed booted, finalized) at a point in time.
type InstalledVersion struct {
	Target      model.Target
	InstalledAt time.Time
	Finalized   bool
}

// InstalledVersionsStore is the sole writer's narrow accessor interface
// (§5 "Shared resources"): the Update Controller is the only writer, and
// readers (e.g. the rollback-target search) call through this interface.
type InstalledVersionsStore interface {
	// Record appends an installed-version entry.
	Record(ctx context.Context, v InstalledVersion) error

	// MarkFinalized flags the entry for hash as finalized (successfully
	// booted and confirmed).
	MarkFinalized(ctx context.Context, hash string) error

	// List returns all recorded entries, oldest first.
	List(ctx context.Context) ([]InstalledVersion, error)

	// RollbackCandidate returns the newest recorded target whose version is
	// strictly less than olderThanVersion — the "find a rollback target"
	// rule in §4.G's app-driven rollback path — or ok=false if none exists.
	RollbackCandidate(ctx context.Context, olderThanVersion int64) (model.Target, bool, error)

	// Close releases any underlying resources.
	Close() error
}

// RollbackCandidateFrom is the shared selection rule both backends apply
// over an already-loaded slice: the newest (by InstalledAt) entry whose
// target version is strictly less than olderThanVersion.
func RollbackCandidateFrom(entries []InstalledVersion, olderThanVersion int64) (model.Target, bool) {
	var best *InstalledVersion
	for i := range entries {
		e := &entries[i]
		if e.Target.Version >= olderThanVersion {
			continue
		}
		if best == nil || e.InstalledAt.After(best.InstalledAt) {
			best = e
		}
	}
	if best == nil {
		return model.Target{}, false
	}
	return best.Target, true
}
