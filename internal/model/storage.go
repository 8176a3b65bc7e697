package model

// StorageStat is the raw block-count statistics of the filesystem backing the
// content-addressed tree (§3, populated by the Storage Probe, §4.A).
type StorageStat struct {
	TotalBlocks uint64
	FreeBlocks  uint64
	BlockSize   uint64
}

// UpdateStat summarizes StorageStat in terms a caller cares about: capacity,
// watermark, and how much room is left for a rootfs update.
type UpdateStat struct {
	StorageCapacityBytes     uint64
	WatermarkPercent         int
	MaxAvailableAtWatermark  uint64
	AvailableForUpdateBytes  uint64
	RequiredDeltaBytes       uint64
}

// DeltaStat describes the compressed/uncompressed byte sizes of a binary
// delta between two specific rootfs commits (§3).
type DeltaStat struct {
	CompressedSize   uint64
	UncompressedSize uint64
}
