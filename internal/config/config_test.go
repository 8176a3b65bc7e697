package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruthy(t *testing.T) {
	require.True(t, Truthy("1"))
	require.True(t, Truthy("yes"))
	require.False(t, Truthy("0"))
	require.False(t, Truthy("false"))
	require.False(t, Truthy(""))
	require.False(t, Truthy("  "))
}

func TestWatermarkDefault(t *testing.T) {
	cfg := &Config{}
	require.Equal(t, defaultWatermark, cfg.Watermark(nil))
}

func TestWatermarkClampsOutOfRange(t *testing.T) {
	var warnings []string
	logWarn := func(msg string) { warnings = append(warnings, msg) }

	low := &Config{Pacman: PacmanConfig{SysrootStorageWatermark: "10"}}
	require.Equal(t, minWatermark, low.Watermark(logWarn))

	high := &Config{Pacman: PacmanConfig{SysrootStorageWatermark: "150"}}
	require.Equal(t, maxWatermark, high.Watermark(logWarn))

	require.Len(t, warnings, 2)
}

func TestWatermarkFallsBackOnParseError(t *testing.T) {
	cfg := &Config{Pacman: PacmanConfig{SysrootStorageWatermark: "not-a-number"}}
	var warned bool
	require.Equal(t, defaultWatermark, cfg.Watermark(func(string) { warned = true }))
	require.True(t, warned)
}

func TestWatermarkWithinRange(t *testing.T) {
	cfg := &Config{Pacman: PacmanConfig{SysrootStorageWatermark: "75"}}
	require.Equal(t, 75, cfg.Watermark(nil))
}

func TestUpdateBlockEnabled(t *testing.T) {
	require.True(t, (&Config{Bootloader: BootloaderConfig{UpdateBlocker: "1"}}).UpdateBlockEnabled())
	require.False(t, (&Config{Bootloader: BootloaderConfig{UpdateBlocker: "0"}}).UpdateBlockEnabled())
}

func TestApplyDefaultsSetsPollingSec(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	require.Equal(t, defaultPollingSec, cfg.Daemon.PollingSec)
}
