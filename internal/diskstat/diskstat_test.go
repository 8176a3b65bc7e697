package diskstat

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgefleet/otaupdater/internal/model"
)

func TestToUpdateStatComputesAvailableAtWatermark(t *testing.T) {
	stat := model.StorageStat{TotalBlocks: 1000, BlockSize: 1024, FreeBlocks: 500}
	updateStat := ToUpdateStat(stat, 90, 2048)

	capacity := uint64(1000 * 1024)
	require.Equal(t, capacity, updateStat.StorageCapacityBytes)
	require.Equal(t, capacity*90/100, updateStat.MaxAvailableAtWatermark)
	require.Equal(t, uint64(2048), updateStat.RequiredDeltaBytes)
}

func TestToUpdateStatClampsAvailableToZeroWhenUsedExceedsWatermark(t *testing.T) {
	// almost no free space: used >> watermark-permitted ceiling.
	stat := model.StorageStat{TotalBlocks: 1000, BlockSize: 1024, FreeBlocks: 1}
	updateStat := ToUpdateStat(stat, 10, 0)
	require.Equal(t, uint64(0), updateStat.AvailableForUpdateBytes)
}

func TestAdmitsComparesInWholeBlocks(t *testing.T) {
	stat := model.UpdateStat{AvailableForUpdateBytes: 4096, RequiredDeltaBytes: 4097}
	require.False(t, Admits(stat, 1024))

	stat2 := model.UpdateStat{AvailableForUpdateBytes: 5120, RequiredDeltaBytes: 4097}
	require.True(t, Admits(stat2, 1024))
}

func TestAdmitsZeroBlockSizeComparesBytesDirectly(t *testing.T) {
	stat := model.UpdateStat{AvailableForUpdateBytes: 100, RequiredDeltaBytes: 100}
	require.True(t, Admits(stat, 0))

	stat2 := model.UpdateStat{AvailableForUpdateBytes: 99, RequiredDeltaBytes: 100}
	require.False(t, Admits(stat2, 0))
}
