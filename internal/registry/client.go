package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/net/idna"

	"github.com/edgefleet/otaupdater/internal/foundation"
	"github.com/edgefleet/otaupdater/internal/model"
	"github.com/edgefleet/otaupdater/internal/retry"
)

// normalizeHost converts a registry hostname to its ASCII (Punycode) form
// per IDNA, tolerating hosts already in ASCII and falling back to the raw
// host on any conversion error rather than failing the request outright.
func normalizeHost(host string) string {
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return host
	}
	return ascii
}

// manifestSizeCap is the hard limit on a manifest response body (§4.B).
const manifestSizeCap = 16 << 20

// Client fetches manifests and blobs from an OCI-style registry, handling
// the two-leg credential exchange, generalizing the teacher's BaseForge
// request-building shape (internal/forge/base_forge.go) to registry calls.
type Client struct {
	httpClient *http.Client
	treehubURL string
	policy     retry.Policy
}

// NewClient builds a registry Client. treehubURL is the configured treehub
// base, used to deduce the hub-creds endpoint (§4.B leg 1). Transient
// request failures (network errors, 5xx responses) are retried per
// retry.DefaultPolicy; §5 scopes retries to the remote-fallback level for
// rootfs pulls, but the registry's own manifest/blob/auth requests get the
// same backoff treatment the teacher's git client gives its operations.
func NewClient(httpClient *http.Client, treehubURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient, treehubURL: treehubURL, policy: retry.DefaultPolicy()}
}

// doWithRetry issues req, retrying per c.policy on transient failures
// (network errors or 5xx responses). A 4xx response is treated as
// permanent and returned on the first attempt, mirroring the teacher's
// isPermanentGitError split in internal/git/retry.go.
func (c *Client) doWithRetry(req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := c.httpClient.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if err == nil {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error status %d", resp.StatusCode)
		} else {
			lastErr = err
		}
		if attempt >= c.policy.MaxRetries {
			return nil, lastErr
		}
		time.Sleep(c.policy.Delay(attempt + 1))
	}
}

// GetManifest issues an authenticated GET for uri's manifest, enforcing the
// 16 MiB size cap and verifying the response's SHA-256 matches
// uri.Digest.Hash (§4.B).
func (c *Client) GetManifest(ctx context.Context, uri model.RegistryURI, acceptFormat string) foundation.Result[[]byte, *foundation.ClassifiedError] {
	fail := func(b *foundation.ErrorBuilder) foundation.Result[[]byte, *foundation.ClassifiedError] {
		return foundation.Err[[]byte, *foundation.ClassifiedError](b.WithComponent("registry").WithOperation("GetManifest").Build())
	}

	header, cerr := c.authHeader(ctx, c.treehubURL, uri.Host, uri.Repo())
	if cerr != nil {
		return foundation.Err[[]byte, *foundation.ClassifiedError](cerr)
	}

	endpoint := fmt.Sprintf("https://%s/v2/%s/manifests/%s", normalizeHost(uri.Host), uri.Repo(), uri.Digest.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fail(foundation.IOError("build manifest request").WithCause(err))
	}
	req.Header.Set("Accept", acceptFormat)
	req.Header.Set("Authorization", header)

	resp, err := c.doWithRetry(req)
	if err != nil {
		return fail(foundation.DownloadFailedError("manifest request failed").WithCause(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(foundation.DownloadFailedError(fmt.Sprintf("manifest request returned status %d", resp.StatusCode)))
	}

	limited := io.LimitReader(resp.Body, manifestSizeCap+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return fail(foundation.IOError("read manifest body").WithCause(err))
	}
	if len(body) > manifestSizeCap {
		return fail(foundation.IntegrityError("manifest exceeds 16 MiB size cap"))
	}

	sum := sha256.Sum256(body)
	if hex.EncodeToString(sum[:]) != uri.Digest.Hash {
		return fail(foundation.IntegrityError("manifest digest mismatch").
			WithContext(foundation.Fields{"expected": uri.Digest.Hash, "got": hex.EncodeToString(sum[:])}))
	}

	return foundation.Ok[[]byte, *foundation.ClassifiedError](body)
}

// DownloadBlob streams uri's blob to path while hashing, aborting the moment
// the received byte count would exceed expectedSize, and validating both
// final size and SHA-256 against the digest. Any failure deletes the
// partial file (§4.B).
func (c *Client) DownloadBlob(ctx context.Context, uri model.RegistryURI, path string, expectedSize uint64) *foundation.ClassifiedError {
	fail := func(b *foundation.ErrorBuilder) *foundation.ClassifiedError {
		return b.WithComponent("registry").WithOperation("DownloadBlob").Build()
	}

	header, cerr := c.authHeader(ctx, c.treehubURL, uri.Host, uri.Repo())
	if cerr != nil {
		return cerr
	}

	endpoint := fmt.Sprintf("https://%s/v2/%s/blobs/%s", normalizeHost(uri.Host), uri.Repo(), uri.Digest.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fail(foundation.IOError("build blob request").WithCause(err))
	}
	req.Header.Set("Authorization", header)

	resp, err := c.doWithRetry(req)
	if err != nil {
		return fail(foundation.DownloadFailedError("blob request failed").WithCause(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(foundation.DownloadFailedError(fmt.Sprintf("blob request returned status %d", resp.StatusCode)))
	}

	out, err := os.Create(path)
	if err != nil {
		return fail(foundation.IOError("create blob destination").WithCause(err))
	}

	hasher := sha256.New()
	var written uint64
	buf := make([]byte, 32*1024)

	abort := func(cerr *foundation.ClassifiedError) *foundation.ClassifiedError {
		out.Close()
		os.Remove(path)
		return cerr
	}

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			written += uint64(n)
			if written > expectedSize {
				return abort(fail(foundation.IntegrityError("blob exceeded expected size mid-stream")))
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				return abort(fail(foundation.IOError("write blob bytes").WithCause(werr)))
			}
			hasher.Write(buf[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return abort(fail(foundation.IOError("read blob bytes").WithCause(readErr)))
		}
	}

	if err := out.Close(); err != nil {
		return abort(fail(foundation.IOError("close blob destination").WithCause(err)))
	}

	if written != expectedSize {
		return abort(fail(foundation.IntegrityError(
			fmt.Sprintf("blob size mismatch: got %d bytes, expected %d", written, expectedSize))))
	}

	got := hex.EncodeToString(hasher.Sum(nil))
	if got != uri.Digest.Hash {
		return abort(fail(foundation.IntegrityError("blob digest mismatch").
			WithContext(foundation.Fields{"expected": uri.Digest.Hash, "got": got})))
	}

	return nil
}
