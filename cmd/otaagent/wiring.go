package main

import (
	"log/slog"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/edgefleet/otaupdater/internal/apps"
	"github.com/edgefleet/otaupdater/internal/bootloader"
	"github.com/edgefleet/otaupdater/internal/config"
	"github.com/edgefleet/otaupdater/internal/controller"
	"github.com/edgefleet/otaupdater/internal/delta"
	"github.com/edgefleet/otaupdater/internal/diskstat"
	"github.com/edgefleet/otaupdater/internal/metadatasrc"
	"github.com/edgefleet/otaupdater/internal/metrics"
	"github.com/edgefleet/otaupdater/internal/registry"
	"github.com/edgefleet/otaupdater/internal/remote"
	"github.com/edgefleet/otaupdater/internal/rootfs"
	"github.com/edgefleet/otaupdater/internal/state"
	"github.com/edgefleet/otaupdater/internal/targetindex"
)

// appsDirName is the subdirectory of the sysroot where fetched application
// manifests are written (SPEC_FULL.md supplement).
const appsDirName = "apps"

// env bundles every long-lived collaborator the CLI commands share, wired
// once per invocation from loaded configuration. Kept as a single struct
// deliberately narrow per component (§9's "explicit context struct passed by
// reference" note) rather than a god-object; each field is itself a small,
// independently testable collaborator.
type env struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpClient *http.Client
	registry   *prom.Registry
	metrics    *metrics.Recorder

	ctrl  *controller.Controller
	index *targetindex.Index
	apps  *apps.Syncer
}

func newEnv(cfg *config.Config, logger *slog.Logger) *env {
	httpClient := &http.Client{}
	reg := prom.NewRegistry()

	watermark := cfg.Watermark(func(msg string) { logger.Warn(msg) })

	prober := diskstat.NewProber()
	selector := remote.NewSelector(httpClient, logger)
	resolver := delta.NewResolver(httpClient, logger)
	tool := rootfs.NewCLITool(cfg.Pacman.Sysroot, "")

	bootReader := bootloader.NewFileReader(true, true, func() bool { return false },
		func(string) (string, error) { return "", errNoBootloaderTargetVersion })
	interlock := bootloader.NewInterlock(bootReader, cfg.UpdateBlockEnabled(), logger)

	rootfsMgr := rootfs.NewManager(tool, selector, resolver, prober, interlock,
		cfg.Pacman.Sysroot, cfg.Pacman.OstreeServer, watermark, logger)

	registryClient := registry.NewClient(httpClient, cfg.Pacman.OstreeServer)
	appSyncer := apps.NewSyncer(registryClient, cfg.Pacman.Sysroot+"/"+appsDirName, logger)

	var versions state.InstalledVersionsStore
	sqliteVersions, err := state.NewSQLiteStore(cfg.Pacman.Sysroot + "/installed-versions.db")
	if err != nil {
		logger.Warn("sqlite installed-versions store unavailable, falling back to json", "error", err)
		jsonVersions, jerr := state.NewJSONStore(cfg.Pacman.Sysroot + "/installed-versions.json")
		if jerr != nil {
			logger.Warn("installed-versions store unavailable, rollback history disabled", "error", jerr)
		} else {
			versions = jsonVersions
		}
	} else {
		versions = sqliteVersions
	}

	index := targetindex.New()
	metadata := metadatasrc.NewClient(httpClient, cfg.TLS.Server)
	deploys := targetindex.NewDeploymentAdapter(tool, index, cfg.Provision.PrimaryECUHardwareID)

	ctrlCfg := controller.Config{
		PrimaryHardwareID: cfg.Provision.PrimaryECUHardwareID,
		SecondaryECUs:     cfg.Provision.SecondaryECUs,
		Tags:              cfg.Pacman.Tags,
		TLSServerBase:     cfg.TLS.Server,
	}

	ctrl := controller.New(ctrlCfg, targetindex.Wrap(metadata, index), deploys, rootfsMgr, appSyncer, versions, httpClient, logger)

	return &env{
		cfg:        cfg,
		logger:     logger,
		httpClient: httpClient,
		registry:   reg,
		metrics:    metrics.NewRecorder(reg),
		ctrl:       ctrl,
		index:      index,
		apps:       appSyncer,
	}
}

var errNoBootloaderTargetVersion = errBootloaderLookup{}

// errBootloaderLookup is the default, always-failing target-version lookup
// used until a concrete bootloader environment tool is wired in; it is a
// general lookup failure (not a malformed-file failure), so §4.E's interlock
// treats it as "no bootloader update bundled", per its rule 3.
type errBootloaderLookup struct{}

func (errBootloaderLookup) Error() string { return "bootloader target-version lookup not configured" }
