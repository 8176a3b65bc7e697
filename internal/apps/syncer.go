// Package apps resolves and fetches a target's containerized application
// manifests through the Registry Client (§4.B, §4.G). Only the manifests are
// fetched; the blobs they reference are not downloaded.
package apps

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/edgefleet/otaupdater/internal/model"
	"github.com/edgefleet/otaupdater/internal/registry"
)

const manifestAcceptFormat = "application/vnd.oci.image.manifest.v1+json"

// Syncer pulls every app referenced by a target's custom metadata,
// implementing controller.AppSyncer.
type Syncer struct {
	client *registry.Client
	appsDir string
	logger *slog.Logger
}

// NewSyncer builds a Syncer. Manifests are written under appsDir/<app>.json.
func NewSyncer(client *registry.Client, appsDir string, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{client: client, appsDir: appsDir, logger: logger}
}

// SyncApps resolves every App in target.Apps and writes its manifest to
// appsDir/<app>.json; referenced blobs are not fetched. It returns the first
// error after attempting every app.
func (s *Syncer) SyncApps(ctx context.Context, target model.Target) error {
	if len(target.Apps) == 0 {
		return nil
	}

	var firstErr error
	for _, app := range target.Apps {
		if err := s.syncOne(ctx, app); err != nil {
			s.logger.Warn("app sync failed", "app", app.Name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Syncer) syncOne(ctx context.Context, app model.App) error {
	parsed := registry.ParseURI(app.URI)
	if parsed.IsErr() {
		return fmt.Errorf("app %s: %w", app.Name, parsed.UnwrapErr())
	}
	uri := parsed.Unwrap()

	manifest := s.client.GetManifest(ctx, uri, manifestAcceptFormat)
	if manifest.IsErr() {
		return fmt.Errorf("app %s: fetch manifest: %w", app.Name, manifest.UnwrapErr())
	}

	manifestPath := filepath.Join(s.appsDir, app.Name+".json")
	if err := os.MkdirAll(s.appsDir, 0o755); err != nil {
		return fmt.Errorf("app %s: create apps directory: %w", app.Name, err)
	}
	if err := os.WriteFile(manifestPath, manifest.Unwrap(), 0o644); err != nil {
		return fmt.Errorf("app %s: write manifest: %w", app.Name, err)
	}
	return nil
}
