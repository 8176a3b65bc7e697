package controller

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgefleet/otaupdater/internal/model"
)

func newECURegistrationServer(t *testing.T, gotPath *string, gotBody *[]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		*gotBody = body
		require.Equal(t, http.MethodPut, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
}

func newCountingECUServer(t *testing.T, called *bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRegisterSecondaryECUsPutsSerialAssignments(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := newECURegistrationServer(t, &gotPath, &gotBody)
	defer srv.Close()

	assignments := map[string]model.Target{
		"secondary-board": {Name: "target-name", Hash: "hash"},
	}
	err := RegisterSecondaryECUs(context.Background(), srv.Client(), srv.URL, assignments)
	require.NoError(t, err)
	require.Equal(t, "/ecus", gotPath)
	require.Contains(t, string(gotBody), "target-name")
}

func TestRegisterSecondaryECUsReturnsErrorOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := RegisterSecondaryECUs(context.Background(), srv.Client(), srv.URL, map[string]model.Target{"s": {Name: "t"}})
	require.Error(t, err)
}
