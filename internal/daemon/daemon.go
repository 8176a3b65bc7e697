// Package daemon wraps the Update Controller's synchronous core in a
// periodic tick loop: a gocron/v2 scheduler drives check-in polling, an
// fsnotify watcher reloads configuration, and an optional HTTP endpoint
// exposes Prometheus metrics. Grounded on the teacher's
// internal/daemon/scheduler.go (Start/Stop, WaitGroup-tracked background
// loop, structured logging at transitions) and internal/daemon/daemon.go
// (the atomic-status-value run-loop shape), but the actual scheduling
// mechanism is gocron/v2 rather than a hand-rolled ticker, since the
// teacher's Schedule/ScheduleType machinery was purpose-built for doc
// rebuild cadences this domain doesn't need.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgefleet/otaupdater/internal/config"
)

// Status mirrors the teacher's daemon.Status shape: a plain string so it
// satisfies interfaces expecting one.
type Status = string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
)

// TickFunc performs one check-in/install cycle; returning an error logs a
// warning but never stops the scheduler.
type TickFunc func(ctx context.Context) error

// Daemon ticks TickFunc on a configured interval, reloads configuration on
// file change, and optionally serves /metrics.
type Daemon struct {
	mu     sync.Mutex
	status Status
	logger *slog.Logger

	cfgPath   string
	cfg       *config.Config
	onReload  func(*config.Config)
	tick      TickFunc
	scheduler gocron.Scheduler

	registry   *prom.Registry
	metricsSrv *http.Server

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New builds a Daemon. cfgPath is watched for changes; onReload is called
// with the freshly loaded config whenever the file changes (nil to skip
// config-reload watching).
func New(cfg *config.Config, cfgPath string, tick TickFunc, onReload func(*config.Config), registry *prom.Registry, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		status:   StatusStopped,
		logger:   logger,
		cfgPath:  cfgPath,
		cfg:      cfg,
		onReload: onReload,
		tick:     tick,
		registry: registry,
		done:     make(chan struct{}),
	}
}

// Start begins ticking and, if cfgPath is non-empty, watching for config
// changes. It returns once the scheduler and watcher are both running.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	d.status = StatusStarting
	d.mu.Unlock()

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	d.scheduler = sched

	interval := time.Duration(d.cfg.Daemon.PollingSec) * time.Second
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			tickCtx, cancel := context.WithTimeout(ctx, interval)
			defer cancel()
			if err := d.tick(tickCtx); err != nil {
				d.logger.Warn("check-in tick failed", "error", err)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("schedule check-in job: %w", err)
	}

	if d.cfg.Daemon.MetricsAddr != "" && d.registry != nil {
		d.startMetricsServer()
	}

	if d.cfgPath != "" && d.onReload != nil {
		if err := d.startConfigWatch(); err != nil {
			d.logger.Warn("config file watch not started", "error", err)
		}
	}

	sched.Start()

	d.mu.Lock()
	d.status = StatusRunning
	d.mu.Unlock()
	d.logger.Info("daemon started", "polling_sec", d.cfg.Daemon.PollingSec)
	return nil
}

func (d *Daemon) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))
	d.metricsSrv = &http.Server{Addr: d.cfg.Daemon.MetricsAddr, Handler: mux}

	go func() {
		if err := d.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("metrics server failed", "error", err)
		}
	}()
}

func (d *Daemon) startConfigWatch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(d.cfgPath); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config file: %w", err)
	}
	d.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					d.reloadConfig()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				d.logger.Warn("config watcher error", "error", err)
			case <-d.done:
				return
			}
		}
	}()
	return nil
}

func (d *Daemon) reloadConfig() {
	newCfg, err := config.Load(d.cfgPath)
	if err != nil {
		d.logger.Warn("config reload failed, keeping previous configuration", "error", err)
		return
	}
	d.mu.Lock()
	d.cfg = newCfg
	d.mu.Unlock()
	d.onReload(newCfg)
	d.logger.Info("configuration reloaded", "path", d.cfgPath)
}

// Stop shuts the daemon down, waiting for the scheduler and watcher to
// release their resources.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.status = StatusStopping
	d.mu.Unlock()

	close(d.done)

	if d.watcher != nil {
		d.watcher.Close()
	}
	if d.metricsSrv != nil {
		if err := d.metricsSrv.Shutdown(ctx); err != nil {
			d.logger.Warn("metrics server shutdown error", "error", err)
		}
	}
	if d.scheduler != nil {
		if err := d.scheduler.Shutdown(); err != nil {
			return fmt.Errorf("shutdown scheduler: %w", err)
		}
	}

	d.mu.Lock()
	d.status = StatusStopped
	d.mu.Unlock()
	d.logger.Info("daemon stopped")
	return nil
}

// Status reports the daemon's current lifecycle state.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}
