// Package logfields provides canonical log field names and helpers for
// structured logging across the agent. Adapted from the teacher's
// internal/logfields package, renaming doc-build fields (job_id,
// repository, section) to update-lifecycle fields (target, remote,
// hardware id, version).
package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyTargetName  = "target_name"
	KeyTargetHash  = "target_hash"
	KeyVersion     = "version"
	KeyRemote      = "remote"
	KeyHardwareID  = "hardware_id"
	KeyCorrelation = "correlation_id"
	KeyDurationMS  = "duration_ms"
	KeyState       = "state"
	KeyError       = "error"
	KeyPath        = "path"
	KeyURL         = "url"
	KeyStatus      = "status"
	KeyComponent   = "component"
	KeyBytes       = "bytes"
)

func TargetName(n string) slog.Attr  { return slog.String(KeyTargetName, n) }
func TargetHash(h string) slog.Attr  { return slog.String(KeyTargetHash, h) }
func Version(v int64) slog.Attr      { return slog.Int64(KeyVersion, v) }
func Remote(r string) slog.Attr      { return slog.String(KeyRemote, r) }
func HardwareID(h string) slog.Attr  { return slog.String(KeyHardwareID, h) }
func Correlation(id string) slog.Attr {
	return slog.String(KeyCorrelation, id)
}
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func State(s string) slog.Attr        { return slog.String(KeyState, s) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func Component(c string) slog.Attr    { return slog.String(KeyComponent, c) }
func Bytes(n int64) slog.Attr         { return slog.Int64(KeyBytes, n) }

// Error returns a slog.Attr for an error, or an empty string if nil.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
