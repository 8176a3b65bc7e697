// Package registry implements the Registry Client (§4.B): authenticated
// fetch of content-addressed manifests and blobs from an OCI-style
// container registry, generalizing the teacher's internal/git credential
// and retry-classification shapes to registry HTTP calls.
package registry

import (
	"strings"

	"github.com/edgefleet/otaupdater/internal/foundation"
	"github.com/edgefleet/otaupdater/internal/model"
)

// ParseURI tokenizes `<host>/<factory>/<app>@sha256:<64hex>` on the final
// `@` (digest separator), then walks the remaining path right-to-left to
// isolate app, factory, and host (§4.B).
func ParseURI(s string) foundation.Result[model.RegistryURI, *foundation.ClassifiedError] {
	fail := func(msg string) foundation.Result[model.RegistryURI, *foundation.ClassifiedError] {
		classified := foundation.InvalidArgumentError(msg).
			WithComponent("registry").
			WithOperation("ParseURI").
			WithContext(foundation.Fields{"uri": s}).
			Build()
		return foundation.Err[model.RegistryURI, *foundation.ClassifiedError](classified)
	}

	at := strings.LastIndex(s, "@")
	if at < 0 {
		return fail("registry uri missing '@<digest>' suffix")
	}
	path, digestPart := s[:at], s[at+1:]

	if !model.ValidDigestPrefix(digestPart) {
		return fail("registry uri digest must begin with sha256:")
	}
	hash := strings.TrimPrefix(digestPart, "sha256:")
	if !model.ValidSHA256Hex(hash) {
		return fail("registry uri digest hash must be 64 lowercase hex characters")
	}

	parts := strings.Split(path, "/")
	if len(parts) < 3 {
		return fail("registry uri must have the form host/factory/app@sha256:hex")
	}
	n := len(parts)
	app := parts[n-1]
	factory := parts[n-2]
	host := strings.Join(parts[:n-2], "/")
	if host == "" || factory == "" || app == "" {
		return fail("registry uri has an empty host, factory, or app segment")
	}

	uri := model.RegistryURI{
		Host:    host,
		Factory: factory,
		App:     app,
		Digest:  model.Digest{Algorithm: "sha256", Hash: hash},
	}
	return foundation.Ok[model.RegistryURI, *foundation.ClassifiedError](uri)
}
