// Package metadatasrc implements the controller.MetadataSource collaborator:
// fetching a post-TUF-verification targets document from the signed-metadata
// server (or, for checkInLocal, reading an already-verified copy from disk)
// and turning it into []model.Target. Signature verification itself is out
// of scope (§1 Non-goals, "signed-metadata (TUF) verification library"); by
// the time either source here runs, the caller's TUF client has already
// validated the document and handed back its signed payload. Request
// shape grounded on the teacher's internal/forge/base_forge.go
// (context-aware GET, header customization).
package metadatasrc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/edgefleet/otaupdater/internal/model"
	"github.com/edgefleet/otaupdater/internal/util/sets"
)

// maxTargetsDocSize caps the targets.json response the way the registry
// client caps manifests (§4.B), since both are untrusted JSON over HTTP.
const maxTargetsDocSize = 8 << 20

// rawTargetsDoc mirrors the Uptane/TUF targets.json "signed" envelope:
// {"signed": {"targets": {<name>: {...}}}}. Fields outside "signed" (the
// "signatures" array) are the verifier's concern, not the core's.
type rawTargetsDoc struct {
	Signed struct {
		Targets map[string]rawTarget `json:"targets"`
	} `json:"signed"`
}

type rawTarget struct {
	Hashes map[string]string `json:"hashes"`
	Custom map[string]any    `json:"custom"`
}

// Client fetches targets.json from the configured metadata server base URL.
type Client struct {
	httpClient *http.Client
	base       string
}

// NewClient builds a metadatasrc.Client against base (tls.server from
// configuration).
func NewClient(httpClient *http.Client, base string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient, base: base}
}

// Targets implements controller.MetadataSource over HTTP.
func (c *Client) Targets(ctx context.Context) ([]model.Target, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/targets.json", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build targets request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("targets request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("targets request returned status %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, maxTargetsDocSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read targets body: %w", err)
	}
	if len(body) > maxTargetsDocSize {
		return nil, fmt.Errorf("targets document exceeds %d byte cap", maxTargetsDocSize)
	}

	return decodeTargetsDoc(body)
}

// FileSource reads an already-verified targets.json from a local path,
// backing Controller.CheckInLocal's tufRepo argument.
type FileSource struct {
	path string
}

// NewFileSource builds a FileSource rooted at a local targets.json path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Targets implements controller.MetadataSource over a local file.
func (f *FileSource) Targets(ctx context.Context) ([]model.Target, error) {
	body, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read local targets file: %w", err)
	}
	return decodeTargetsDoc(body)
}

func decodeTargetsDoc(body []byte) ([]model.Target, error) {
	var doc rawTargetsDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal targets document: %w", err)
	}

	targets := make([]model.Target, 0, len(doc.Signed.Targets))
	for name, raw := range doc.Signed.Targets {
		targets = append(targets, targetFromRaw(name, raw))
	}
	return targets, nil
}

// targetFromRaw extracts every typed, fallible field a Target needs from
// untrusted custom JSON (§9 "all inbound JSON must be treated as
// untrusted"); missing/mistyped fields degrade gracefully rather than
// failing the whole document.
func targetFromRaw(name string, raw rawTarget) model.Target {
	t := model.Target{
		Name:         name,
		Hash:         raw.Hashes["sha256"],
		CustomFields: raw.Custom,
	}

	t.Version = parseVersionField(raw.Custom["version"])
	t.HardwareIDs = stringSliceField(raw.Custom["hardwareIds"])
	t.Tags = sets.New(stringSliceField(raw.Custom["tags"])...)

	if ref, ok := deltaStatsRefField(raw.Custom["delta-stats"]); ok {
		t.DeltaStats = &ref
	}
	t.Apps = appsField(raw.Custom["docker_compose_apps"])

	return t
}

// parseVersionField implements §4.G's "unparseable versions become -1, still
// included" rule; the TUF custom.version field is carried as a string.
func parseVersionField(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return -1
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return -1
	}
	return n
}

func stringSliceField(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			continue
		}
		out = append(out, s)
	}
	return out
}

func deltaStatsRefField(v any) (model.DeltaStatsRef, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return model.DeltaStatsRef{}, false
	}
	sha, ok := m["sha256"].(string)
	if !ok || sha == "" {
		return model.DeltaStatsRef{}, false
	}
	size, ok := numberField(m["size"])
	if !ok {
		return model.DeltaStatsRef{}, false
	}
	return model.DeltaStatsRef{SHA256: sha, Size: size}, true
}

func numberField(v any) (uint64, bool) {
	switch n := v.(type) {
	case json.Number:
		u, err := strconv.ParseUint(n.String(), 10, 64)
		return u, err == nil
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

func appsField(v any) []model.App {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	apps := make([]model.App, 0, len(m))
	for name, entry := range m {
		em, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		uri, ok := em["uri"].(string)
		if !ok {
			continue
		}
		apps = append(apps, model.App{Name: name, URI: uri})
	}
	return apps
}
