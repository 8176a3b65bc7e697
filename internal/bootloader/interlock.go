// Package bootloader implements the Bootloader Interlock (§4.E): reading
// bootloader state, comparing versions, and gating rootfs updates against
// an in-progress bootloader update or a version rollback attempt. Version
// comparison semantics generalized from the teacher's
// internal/versioning/manager.go (service/manager split, slog usage) from
// semantic doc-versioning to the bootloader's base-10 u64 scheme.
package bootloader

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/edgefleet/otaupdater/internal/model"
)

const (
	versionFilePath     = "/usr/lib/firmware/version.txt"
	versionFileKey      = "bootfirmware_version"
	minWatermark        = 50
	maxWatermark        = 95
	defaultWatermark    = 90
)

// Reader abstracts the bootloader environment's observable state, letting
// tests substitute fakes without touching the filesystem.
type Reader interface {
	IsUpdateSupported() bool
	IsUpdateInProgress() bool
	IsRollbackProtectionEnabled() bool
	GetCurrentVersion() (string, bool)
	GetTargetVersion(commitHash string) (string, error)
}

// Interlock evaluates §4.E's ordered rules against a Reader.
type Interlock struct {
	reader      Reader
	updateBlock bool // maps the `bootupgrade_available_blocker` config key
	logger      *slog.Logger
}

// NewInterlock builds an Interlock. updateBlock is the truthy-parsed value
// of the `bootupgrade_available_blocker` configuration key.
func NewInterlock(reader Reader, updateBlock bool, logger *slog.Logger) *Interlock {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interlock{reader: reader, updateBlock: updateBlock, logger: logger}
}

// IsUpdateSupported reports whether the bootloader environment supports
// interlocked updates at all (§4.F's "Bootloader Interlock reports update
// supported" gate). Callers that hold an Interlock should check this before
// invoking VerifyBootloaderUpdate rather than relying on the Interlock's
// mere presence.
func (i *Interlock) IsUpdateSupported() bool {
	return i.reader.IsUpdateSupported()
}

// VerifyBootloaderUpdate evaluates the §4.E rules in order against target,
// returning the InstallationResult of the first matching rule, or an Ok
// result if none block the update.
func (i *Interlock) VerifyBootloaderUpdate(target model.Target) model.InstallationResult {
	// Rule 1: a bootloader update already in progress blocks the rootfs
	// update until the device reboots to finalize it.
	if i.updateBlock && i.reader.IsUpdateInProgress() {
		return model.NewResult(model.InstallNeedCompletion, "reboot to finalize bootloader")
	}

	// Rule 2: without rollback protection there is nothing to interlock.
	if !i.reader.IsRollbackProtectionEnabled() {
		return model.Ok("rollback protection disabled")
	}

	// Rule 3/4: obtain and parse the target's bootloader version.
	targetVersionStr, err := i.reader.GetTargetVersion(target.Hash)
	if err != nil {
		if isMalformed(err) {
			return model.NewResult(model.InstallInstallFailed, fmt.Sprintf("bootloader version file malformed: %v", err))
		}
		// General lookup failure: assume no bootloader update bundled.
		return model.Ok("no bootloader version available for target")
	}

	targetVersion, err := strconv.ParseUint(targetVersionStr, 10, 64)
	if err != nil {
		return model.NewResult(model.InstallInstallFailed, fmt.Sprintf("target bootloader version %q is not a valid integer", targetVersionStr))
	}

	// Rule 5: missing/invalid current version is treated as 0, not fatal.
	currentVersion := uint64(0)
	if currentVersionStr, valid := i.reader.GetCurrentVersion(); valid {
		if v, err := strconv.ParseUint(currentVersionStr, 10, 64); err == nil {
			currentVersion = v
		} else {
			i.logger.Warn("current bootloader version is not a valid integer, treating as 0", "value", currentVersionStr)
		}
	} else {
		i.logger.Warn("current bootloader version unavailable, treating as 0")
	}

	// Rule 6: reject rollback.
	if targetVersion < currentVersion {
		return model.NewResult(model.InstallInstallFailed,
			fmt.Sprintf("bootloader rollback from version %d to %d", currentVersion, targetVersion))
	}

	return model.Ok("bootloader update permitted")
}

// MalformedVersionFileError distinguishes "the version file exists but its
// contents can't be parsed" (fatal) from other lookup failures such as
// "file not present" (treated as no bootloader update).
type MalformedVersionFileError struct{ inner error }

func (e *MalformedVersionFileError) Error() string {
	return "malformed version file: " + e.inner.Error()
}
func (e *MalformedVersionFileError) Unwrap() error { return e.inner }

func isMalformed(err error) bool {
	var m *MalformedVersionFileError
	return errors.As(err, &m)
}

// ClampWatermark clamps an already-parsed watermark into [50, 95]; it does
// no parsing and logs nothing. Parsing, the default of 90 and the warnings
// for the config-loading path live in internal/config.Watermark; this copy
// lets the interlock package enforce the same bound on values it receives
// directly from a caller that bypassed config loading (e.g. tests).
func ClampWatermark(v int) int {
	if v < minWatermark {
		return minWatermark
	}
	if v > maxWatermark {
		return maxWatermark
	}
	return v
}

// DefaultWatermark is the watermark used when none is configured.
const DefaultWatermark = defaultWatermark

// FileReader is the production Reader backed by the on-disk bootloader
// environment: a key=value version file at /usr/lib/firmware/version.txt
// and a target-version lookup delegated to the rootfs tree's commit detail
// (not modeled here; callers supply targetVersionLookup).
type FileReader struct {
	updateSupported       bool
	updateInProgress      func() bool
	rollbackProtection    bool
	targetVersionLookup   func(commitHash string) (string, error)
}

// NewFileReader builds a FileReader.
func NewFileReader(updateSupported, rollbackProtection bool, updateInProgress func() bool, targetVersionLookup func(string) (string, error)) *FileReader {
	return &FileReader{
		updateSupported:     updateSupported,
		updateInProgress:    updateInProgress,
		rollbackProtection:  rollbackProtection,
		targetVersionLookup: targetVersionLookup,
	}
}

func (f *FileReader) IsUpdateSupported() bool { return f.updateSupported }

func (f *FileReader) IsUpdateInProgress() bool {
	if f.updateInProgress == nil {
		return false
	}
	return f.updateInProgress()
}

func (f *FileReader) IsRollbackProtectionEnabled() bool { return f.rollbackProtection }

// GetCurrentVersion reads bootfirmware_version=<u64> out of the on-disk
// version file.
func (f *FileReader) GetCurrentVersion() (string, bool) {
	file, err := os.Open(versionFilePath)
	if err != nil {
		return "", false
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		k, v, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		if strings.TrimSpace(k) == versionFileKey {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func (f *FileReader) GetTargetVersion(commitHash string) (string, error) {
	if f.targetVersionLookup == nil {
		return "", fmt.Errorf("no target version lookup configured")
	}
	return f.targetVersionLookup(commitHash)
}
