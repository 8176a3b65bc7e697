// Package model defines the core data types the update orchestration engine
// operates on: Target, Deployment, Remote, and the small value types that
// travel between components (§3 of the design).
package model

import (
	"github.com/edgefleet/otaupdater/internal/util/sets"
)

// DeltaStatsRef is a {digest, byte size} pointer to a delta-statistics
// sidecar object, carried in a Target's custom metadata.
type DeltaStatsRef struct {
	SHA256 string
	Size   uint64
}

// MaxDeltaStatsSize is the hard cap on DeltaStatsRef.Size (1 MiB, §3).
const MaxDeltaStatsSize = 1 << 20

// App is a containerized application reference carried in a Target's custom
// metadata: name -> registry URI.
type App struct {
	Name string
	URI  string
}

// Target is a signed update candidate. Targets are immutable; equality is by
// content hash.
//
// HardwareIDs preserves input order: §4.G's GetLatest matches against the
// *first* hardware id specifically, so this cannot be a Set.
type Target struct {
	Name         string
	Hash         string // 64 lowercase hex chars, SHA-256
	Version      int64
	HardwareIDs  []string
	Tags         sets.Set[string]
	DeltaStats   *DeltaStatsRef
	Apps         []App
	CustomFields map[string]any
}

// Equal compares two targets by content hash, per §3's equality rule.
func (t Target) Equal(other Target) bool {
	return t.Hash == other.Hash
}

// Unknown reports whether this Target is the synthetic "unknown" placeholder
// used to represent a fresh device with no prior Target recorded (§4.F
// "Initial-target bootstrapping").
func (t Target) Unknown() bool {
	return t.Hash == ""
}

// PrimaryHardwareID returns the target's first configured hardware id, or ""
// if none. §4.G's GetLatest filters on exactly this value.
func (t Target) PrimaryHardwareID() string {
	if len(t.HardwareIDs) == 0 {
		return ""
	}
	return t.HardwareIDs[0]
}

// HasHardwareID reports whether hwid appears anywhere in the target's
// hardware-id list (used by the check-in filter, which accepts a match on
// the primary ecu id or any configured secondary hwid).
func (t Target) HasHardwareID(hwid string) bool {
	for _, id := range t.HardwareIDs {
		if id == hwid {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the target carries at least one of the given
// tags, per the check-in filter rule.
func (t Target) HasAnyTag(tags []string) bool {
	for _, tag := range tags {
		if t.Tags.Has(tag) {
			return true
		}
	}
	return false
}
