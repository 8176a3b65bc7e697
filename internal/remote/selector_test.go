package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetRemotesNonHTTPBaseReturnsPrimaryOnly(t *testing.T) {
	s := NewSelector(nil, nil)
	remotes := s.GetRemotes(context.Background(), "file:///sysroot/ostree_repo", "target-1")
	require.Len(t, remotes, 1)
	require.Equal(t, "<configured>", remotes[0].Name)
}

// TestGetRemotesPreservesGatewayArrayOrder locks in the §8 scenario 5
// resolution: gateway entry 0 is tried first, entry 1 second, primary last.
func TestGetRemotesPreservesGatewayArrayOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entries := []gatewayEntry{
			{DownloadURL: "https://gcs/a", AccessToken: "tok-a"},
			{DownloadURL: "https://gcs/b", AccessToken: "tok-b"},
		}
		_ = json.NewEncoder(w).Encode(entries)
	}))
	defer srv.Close()

	s := NewSelector(srv.Client(), nil)
	remotes := s.GetRemotes(context.Background(), srv.URL, "target-1")

	require.Len(t, remotes, 3)
	require.Equal(t, "https://gcs/a", remotes[0].BaseURL)
	require.Equal(t, "https://gcs/b", remotes[1].BaseURL)
	require.Equal(t, srv.URL, remotes[2].BaseURL)
	require.Equal(t, "<configured>", remotes[2].Name)
}

func TestGetRemotesFallsBackOnGatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewSelector(srv.Client(), nil)
	remotes := s.GetRemotes(context.Background(), srv.URL, "target-1")
	require.Len(t, remotes, 1)
	require.Equal(t, srv.URL, remotes[0].BaseURL)
}
