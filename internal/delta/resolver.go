// Package delta implements the Delta Stat Resolver (§4.C): looking up a
// target's delta-statistics reference, fetching the sidecar JSON, and
// extracting the compressed/uncompressed sizes for a specific from/to pair.
// Stateless Manager shape grounded on the teacher's
// internal/build/delta/manager.go.
package delta

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"

	"github.com/edgefleet/otaupdater/internal/model"
)

// maxDeltaStatsBytes is the hard cap enforced on a delta-stats download
// (§4.C); equal to model.MaxDeltaStatsSize.
const maxDeltaStatsBytes = model.MaxDeltaStatsSize

// Resolver is stateless; all collaboration happens through its method
// arguments, mirroring the teacher's delta.Manager.
type Resolver struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewResolver builds a Resolver.
func NewResolver(httpClient *http.Client, logger *slog.Logger) *Resolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{httpClient: httpClient, logger: logger}
}

// FindRef looks up custom.delta-stats on a target's custom metadata map,
// requiring a string "sha256" field and an unsigned-integer "size" field.
// Missing or wrongly typed fields return (nil, false) with a logged
// warning, never an error (§4.C).
func (r *Resolver) FindRef(targetCustom map[string]any) (*model.DeltaStatsRef, bool) {
	if targetCustom == nil {
		return nil, false
	}
	raw, ok := targetCustom["delta-stats"]
	if !ok {
		return nil, false
	}
	fields, ok := raw.(map[string]any)
	if !ok {
		r.logger.Warn("custom.delta-stats is not an object")
		return nil, false
	}

	sha, ok := fields["sha256"].(string)
	if !ok || sha == "" {
		r.logger.Warn("custom.delta-stats.sha256 missing or not a string")
		return nil, false
	}

	size, ok := asUint64(fields["size"])
	if !ok {
		r.logger.Warn("custom.delta-stats.size missing or not an unsigned integer")
		return nil, false
	}

	return &model.DeltaStatsRef{SHA256: sha, Size: size}, true
}

// Download fetches <remote.baseUrl>/delta-stats/<ref.sha256> with the
// remote's headers, enforcing the 1 MiB cap on ref.Size and verifying the
// fetched byte count and SHA-256 match ref. Any violation returns
// (nil, false) rather than an error, per the contract's "None" semantics
// (§4.C).
func (r *Resolver) Download(ctx context.Context, ref model.DeltaStatsRef, remote model.Remote) ([]byte, bool) {
	if ref.Size > maxDeltaStatsBytes {
		r.logger.Warn("delta-stats ref exceeds 1 MiB cap, skipping", "size", ref.Size)
		return nil, false
	}

	endpoint := remote.BaseURL + "/delta-stats/" + ref.SHA256
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		r.logger.Warn("building delta-stats request failed", "error", err)
		return nil, false
	}
	for k, v := range remote.Headers {
		req.Header.Set(k, v)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Warn("delta-stats request failed", "error", err)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("delta-stats request returned non-200", "status", resp.StatusCode)
		return nil, false
	}

	limited := io.LimitReader(resp.Body, int64(maxDeltaStatsBytes)+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		r.logger.Warn("reading delta-stats body failed", "error", err)
		return nil, false
	}
	if uint64(len(body)) != ref.Size {
		r.logger.Warn("delta-stats byte count mismatch", "got", len(body), "want", ref.Size)
		return nil, false
	}

	sum := sha256.Sum256(body)
	if hex.EncodeToString(sum[:]) != ref.SHA256 {
		r.logger.Warn("delta-stats digest mismatch")
		return nil, false
	}

	return body, true
}

// FindStat extracts the DeltaStat for the fromHash->toHash pair from a
// Download'd JSON blob shaped `{toHash: {fromHash: {size, u_size}}}`.
// Missing or mistyped fields return (nil, false) (§4.C).
func (r *Resolver) FindStat(raw []byte, fromHash, toHash string) (*model.DeltaStat, bool) {
	var doc map[string]map[string]struct {
		Size  json.Number `json:"size"`
		USize json.Number `json:"u_size"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		r.logger.Warn("delta-stats json is not the expected shape", "error", err)
		return nil, false
	}

	toEntry, ok := doc[toHash]
	if !ok {
		return nil, false
	}
	entry, ok := toEntry[fromHash]
	if !ok {
		return nil, false
	}

	compressed, ok1 := asUint64FromJSONNumber(entry.Size)
	uncompressed, ok2 := asUint64FromJSONNumber(entry.USize)
	if !ok1 || !ok2 {
		r.logger.Warn("delta-stats entry has non-integer size fields")
		return nil, false
	}

	return &model.DeltaStat{CompressedSize: compressed, UncompressedSize: uncompressed}, true
}

func asUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 || n != math.Trunc(n) {
			return 0, false
		}
		return uint64(n), true
	case json.Number:
		return asUint64FromJSONNumber(n)
	default:
		return 0, false
	}
}

func asUint64FromJSONNumber(n json.Number) (uint64, bool) {
	i, err := n.Int64()
	if err != nil || i < 0 {
		return 0, false
	}
	return uint64(i), true
}
