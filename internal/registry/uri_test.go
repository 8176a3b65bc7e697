package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseURIValid(t *testing.T) {
	uri := strings.Repeat("a", 64)
	result := ParseURI("hub.example.com/myfactory/myapp@sha256:" + uri)
	require.True(t, result.IsOk())
	v := result.Unwrap()
	require.Equal(t, "hub.example.com", v.Host)
	require.Equal(t, "myfactory", v.Factory)
	require.Equal(t, "myapp", v.App)
	require.Equal(t, uri, v.Digest.Hash)
}

func TestParseURINestedHost(t *testing.T) {
	hash := strings.Repeat("b", 64)
	result := ParseURI("registry.sub.example.com/path/myfactory/myapp@sha256:" + hash)
	require.True(t, result.IsOk())
	v := result.Unwrap()
	require.Equal(t, "registry.sub.example.com/path", v.Host)
}

func TestParseURIRejectsMissingDigest(t *testing.T) {
	result := ParseURI("hub.example.com/myfactory/myapp")
	require.True(t, result.IsErr())
}

func TestParseURIRejectsBadDigestPrefix(t *testing.T) {
	hash := strings.Repeat("c", 64)
	result := ParseURI("hub.example.com/myfactory/myapp@md5:" + hash)
	require.True(t, result.IsErr())
}

func TestParseURIRejectsShortHash(t *testing.T) {
	result := ParseURI("hub.example.com/myfactory/myapp@sha256:abc123")
	require.True(t, result.IsErr())
}

func TestParseURIRejectsTooFewSegments(t *testing.T) {
	hash := strings.Repeat("d", 64)
	result := ParseURI("myapp@sha256:" + hash)
	require.True(t, result.IsErr())
}

func TestNormalizeHostPassesThroughASCII(t *testing.T) {
	require.Equal(t, "hub.example.com", normalizeHost("hub.example.com"))
}

func TestNormalizeHostConvertsUnicode(t *testing.T) {
	got := normalizeHost("faß.example.com")
	require.Equal(t, "xn--fa-hia.example.com", got)
}
