package model

import (
	"fmt"
	"strings"
)

// Digest is a parsed `sha256:<64-hex>` content digest.
type Digest struct {
	Algorithm string
	Hash      string
}

func (d Digest) String() string {
	return d.Algorithm + ":" + d.Hash
}

// RegistryURI is the parsed form of `<host>/<factory>/<app>@sha256:<64hex>`.
type RegistryURI struct {
	Host    string
	Factory string
	App     string
	Digest  Digest
}

// Repo is the `<factory>/<app>` path segment registries key manifests by.
func (u RegistryURI) Repo() string {
	return u.Factory + "/" + u.App
}

// String reconstructs the canonical form; for any s where registry.ParseURI(s)
// succeeds, registry.ParseURI(s).Unwrap().String() == s (§8 testable property).
func (u RegistryURI) String() string {
	return fmt.Sprintf("%s/%s@%s", u.Host, u.Repo(), u.Digest.String())
}

const digestAlgoSHA256 = "sha256"

// sha256HexLen is the fixed length of a lowercase SHA-256 hex digest.
const sha256HexLen = 64

// ValidSHA256Hex reports whether s is exactly 64 lowercase hex characters.
func ValidSHA256Hex(s string) bool {
	if len(s) != sha256HexLen {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return true
}

// ValidDigestPrefix reports whether s begins with "sha256:".
func ValidDigestPrefix(s string) bool {
	return strings.HasPrefix(s, digestAlgoSHA256+":")
}
