package registry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/edgefleet/otaupdater/internal/foundation"
)

// defaultHubCredsURL is the built-in fallback used when a hub-creds endpoint
// cannot be deduced from the configured treehub URL (§4.B leg 1).
const defaultHubCredsURL = "https://ota-lite.gaia.dev.ota.here.com/hub-creds/"

type hubCreds struct {
	Username string
	Secret   string
}

type tokenResponse struct {
	Token string `json:"token"`
}

// hubCredsURL deduces the gateway endpoint for basic-auth material: find
// "treehub" in the configured URL and replace everything from there onward
// with "hub-creds/". Falls back to a built-in default if "treehub" doesn't
// appear.
func hubCredsURL(treehubURL string) string {
	idx := strings.Index(treehubURL, "treehub")
	if idx < 0 {
		return defaultHubCredsURL
	}
	return treehubURL[:idx] + "hub-creds/"
}

// basicAuthHeader fetches {Username, Secret} from the hub-creds endpoint and
// renders the "basic <base64>" header value (§4.B leg 1).
func (c *Client) basicAuthHeader(ctx context.Context, treehubURL string) (string, *foundation.ClassifiedError) {
	endpoint := hubCredsURL(treehubURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return "", foundation.IOError("build hub-creds request").
			WithCause(err).WithComponent("registry").WithOperation("basicAuthHeader").Build()
	}

	resp, err := c.doWithRetry(req)
	if err != nil {
		return "", foundation.DownloadFailedError("fetch hub-creds").
			WithCause(err).WithComponent("registry").WithOperation("basicAuthHeader").Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", foundation.DownloadFailedError(fmt.Sprintf("hub-creds returned status %d", resp.StatusCode)).
			WithComponent("registry").WithOperation("basicAuthHeader").Build()
	}

	var creds hubCreds
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return "", foundation.DownloadFailedError("decode hub-creds response").
			WithCause(err).WithComponent("registry").WithOperation("basicAuthHeader").Build()
	}
	if creds.Username == "" || creds.Secret == "" {
		return "", foundation.DownloadFailedError("hub-creds response missing username or secret").
			WithComponent("registry").WithOperation("basicAuthHeader").Build()
	}

	raw := creds.Username + ":" + creds.Secret
	encoded := base64.StdEncoding.EncodeToString([]byte(raw))
	return "basic " + encoded, nil
}

// bearerToken exchanges the basic-auth header for a scoped bearer token
// (§4.B leg 2).
func (c *Client) bearerToken(ctx context.Context, host, repo, basicHeader string) (string, *foundation.ClassifiedError) {
	endpoint := fmt.Sprintf("https://%s/token-auth/?service=registry&scope=repository:%s:pull", host, repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return "", foundation.IOError("build token-auth request").
			WithCause(err).WithComponent("registry").WithOperation("bearerToken").Build()
	}
	req.Header.Set("Authorization", basicHeader)

	resp, err := c.doWithRetry(req)
	if err != nil {
		return "", foundation.DownloadFailedError("fetch bearer token").
			WithCause(err).WithComponent("registry").WithOperation("bearerToken").Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", foundation.DownloadFailedError(fmt.Sprintf("token-auth returned status %d", resp.StatusCode)).
			WithComponent("registry").WithOperation("bearerToken").Build()
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", foundation.DownloadFailedError("decode token-auth response").
			WithCause(err).WithComponent("registry").WithOperation("bearerToken").Build()
	}
	if tok.Token == "" {
		return "", foundation.DownloadFailedError("token-auth response missing token").
			WithComponent("registry").WithOperation("bearerToken").Build()
	}

	return "bearer " + tok.Token, nil
}

// authHeader performs the full two-leg exchange and returns the header value
// to send on manifest/blob requests. Tokens are not cached across calls,
// matching the contract; callers that want caching wrap this.
func (c *Client) authHeader(ctx context.Context, treehubURL, host, repo string) (string, *foundation.ClassifiedError) {
	basic, cerr := c.basicAuthHeader(ctx, treehubURL)
	if cerr != nil {
		return "", cerr
	}
	return c.bearerToken(ctx, host, repo, basic)
}
