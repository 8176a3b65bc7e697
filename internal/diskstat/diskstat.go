// Package diskstat implements the Storage Probe (§4.A): reading raw
// filesystem block statistics for the tree's backing mount and converting
// them into the byte-oriented UpdateStat a caller can reason about,
// generalizing the teacher's internal/storage filesystem-probing shape to a
// syscall-level stat instead of an object store.
package diskstat

import (
	"fmt"
	"syscall"

	"github.com/edgefleet/otaupdater/internal/foundation"
	"github.com/edgefleet/otaupdater/internal/model"
)

// Prober reads filesystem block statistics for a path.
type Prober struct{}

// NewProber builds a Prober. It is stateless; a single instance can be
// shared across goroutines.
func NewProber() *Prober {
	return &Prober{}
}

// Stat stats path's backing filesystem and returns its block-level
// statistics, or an IOError if the underlying statfs call fails (§4.A).
func (p *Prober) Stat(path string) foundation.Result[model.StorageStat, *foundation.ClassifiedError] {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(path, &fs); err != nil {
		classified := foundation.IOError(fmt.Sprintf("statfs %s", path)).
			WithCause(err).
			WithComponent("diskstat").
			WithOperation("Stat").
			Build()
		return foundation.Err[model.StorageStat, *foundation.ClassifiedError](classified)
	}

	stat := model.StorageStat{
		TotalBlocks: uint64(fs.Blocks),
		BlockSize:   uint64(fs.Bsize),
	}

	// Non-root processes are restricted to Bavail (blocks available to
	// unprivileged users); uid 0 sees the full Bfree pool. The agent runs as
	// whichever uid the init system grants it, so the selection has to be
	// made at stat time rather than assumed.
	if syscall.Geteuid() == 0 {
		stat.FreeBlocks = uint64(fs.Bfree)
	} else {
		stat.FreeBlocks = uint64(fs.Bavail)
	}

	return foundation.Ok[model.StorageStat, *foundation.ClassifiedError](stat)
}

// ToUpdateStat converts a raw StorageStat into byte-denominated figures at
// the given watermark percentage (§3, §4.E): the watermark reserves
// (100-watermark)% of total capacity from ever being used by an update, and
// requiredDeltaBytes is the caller-supplied size of the pending delta.
func ToUpdateStat(stat model.StorageStat, watermarkPercent int, requiredDeltaBytes uint64) model.UpdateStat {
	capacity := stat.TotalBlocks * stat.BlockSize
	free := stat.FreeBlocks * stat.BlockSize

	maxAtWatermark := (capacity * uint64(watermarkPercent)) / 100

	used := uint64(0)
	if capacity > free {
		used = capacity - free
	}

	available := uint64(0)
	if maxAtWatermark > used {
		available = maxAtWatermark - used
	}

	return model.UpdateStat{
		StorageCapacityBytes:    capacity,
		WatermarkPercent:        watermarkPercent,
		MaxAvailableAtWatermark: maxAtWatermark,
		AvailableForUpdateBytes: available,
		RequiredDeltaBytes:      requiredDeltaBytes,
	}
}

// Admits reports whether stat has enough headroom under the watermark to
// admit a delta of the stat's RequiredDeltaBytes size (§4.E admission rule:
// floor the available blocks, ceil the required blocks, compare in blocks
// rather than raw bytes to avoid rounding a borderline update into
// admission).
func Admits(stat model.UpdateStat, blockSize uint64) bool {
	if blockSize == 0 {
		return stat.AvailableForUpdateBytes >= stat.RequiredDeltaBytes
	}
	availableBlocks := stat.AvailableForUpdateBytes / blockSize // floor
	requiredBlocks := ceilDiv(stat.RequiredDeltaBytes, blockSize)
	return availableBlocks >= requiredBlocks
}

func ceilDiv(n, d uint64) uint64 {
	if d == 0 {
		return 0
	}
	return (n + d - 1) / d
}
