// Package remote implements the Remote Selector (§4.D): building the
// ordered list of fetch origins for a target's rootfs commit, including the
// gateway-issued signed-URL fallback. Structurally grounded on the
// teacher's internal/git/remote.go (named-origin list construction) and
// internal/git/remote_cache.go (ordering/caching of origin lookups).
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/edgefleet/otaupdater/internal/model"
	"github.com/edgefleet/otaupdater/internal/retry"
)

// gatewayEntry is one element of the `/download-urls` response array.
type gatewayEntry struct {
	DownloadURL string `json:"download_url"`
	AccessToken string `json:"access_token"`
}

// Selector builds Remote lists for a given base ostree server.
type Selector struct {
	httpClient *http.Client
	logger     *slog.Logger
	policy     retry.Policy
}

// NewSelector builds a Selector. The gateway download-urls request is
// retried per retry.DefaultPolicy on transient failure before GetRemotes
// falls back to the primary-only remote list.
func NewSelector(httpClient *http.Client, logger *slog.Logger) *Selector {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{httpClient: httpClient, logger: logger, policy: retry.DefaultPolicy()}
}

// doWithRetry issues req, retrying per s.policy on transient failures
// (network errors or 5xx responses).
func (s *Selector) doWithRetry(req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := s.httpClient.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if err == nil {
			resp.Body.Close()
			lastErr = fmt.Errorf("download-urls returned status %d", resp.StatusCode)
		} else {
			lastErr = err
		}
		if attempt >= s.policy.MaxRetries {
			return nil, lastErr
		}
		time.Sleep(s.policy.Delay(attempt + 1))
	}
}

// GetRemotes always produces at least one Remote for baseOstreeServer. If
// baseOstreeServer begins with "http", it additionally POSTs to
// `<base>/download-urls`; a successful response is prepended, in the
// gateway's own array order, as remotes named "gcs", ahead of the primary.
// Order defines fallback precedence, highest precedence first (§4.D);
// gateway entry 0 is tried first, then entry 1, ..., then the primary last.
//
// The source this was modeled on builds its gateway list by repeated
// insertion at index 0, which reverses the gateway's own array order in
// practice — see DESIGN.md for why that reversed behavior is NOT
// reproduced here: the concrete worked example in the design's testable
// properties is explicit that entry 0 is tried first, which only matches a
// straight one-shot prepend in array order.
func (s *Selector) GetRemotes(ctx context.Context, baseOstreeServer, targetName string) []model.Remote {
	primary := model.Remote{
		Name:    "<configured>",
		BaseURL: baseOstreeServer,
		Headers: map[string]string{"X-Correlation-ID": targetName},
	}

	remotes := []model.Remote{primary}

	if !strings.HasPrefix(baseOstreeServer, "http") {
		return remotes
	}

	entries, err := s.fetchDownloadURLs(ctx, baseOstreeServer)
	if err != nil {
		s.logger.Warn("gateway download-urls request failed, using primary remote only", "error", err)
		return remotes
	}

	gateway := make([]model.Remote, 0, len(entries))
	for _, e := range entries {
		gateway = append(gateway, model.Remote{
			Name:    "gcs",
			BaseURL: e.DownloadURL,
			Headers: map[string]string{
				"X-Correlation-ID": targetName,
				"Authorization":    "Bearer " + e.AccessToken,
			},
		})
	}

	return append(gateway, remotes...)
}

func (s *Selector) fetchDownloadURLs(ctx context.Context, gatewayBase string) ([]gatewayEntry, error) {
	endpoint := gatewayBase + "/download-urls"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(nil))
	if err != nil {
		return nil, fmt.Errorf("build download-urls request: %w", err)
	}

	resp, err := s.doWithRetry(req)
	if err != nil {
		return nil, fmt.Errorf("download-urls request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download-urls returned status %d", resp.StatusCode)
	}

	var entries []gatewayEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode download-urls response: %w", err)
	}

	return entries, nil
}
