// Package metrics records Prometheus metrics for the update lifecycle,
// directly grounded on the teacher's internal/metrics/prometheus_recorder.go
// (HistogramVec/CounterVec/Gauge with sync.Once idempotent registration),
// renamespaced from "docbuilder" to this domain's check-in/download/install
// events.
package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "otaagent"

// Recorder records the agent's operational metrics.
type Recorder struct {
	once sync.Once

	checkInDuration  prom.Histogram
	checkInResults   *prom.CounterVec
	downloadDuration *prom.HistogramVec
	downloadResults  *prom.CounterVec
	installDuration  prom.Histogram
	installResults   *prom.CounterVec
	bootloaderBlocks *prom.CounterVec
	diskWatermark    prom.Gauge
}

// NewRecorder constructs and registers the agent's Prometheus metrics
// (idempotent). A nil registry gets a fresh one.
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{}
	r.once.Do(func() {
		r.checkInDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "checkin_duration_seconds",
			Help:      "Duration of a metadata check-in",
			Buckets:   prom.DefBuckets,
		})
		r.checkInResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "checkin_results_total",
			Help:      "Check-in outcomes",
		}, []string{"result"})
		r.downloadDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Duration of a rootfs/app download attempt, by remote",
			Buckets:   prom.DefBuckets,
		}, []string{"remote", "result"})
		r.downloadResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "download_results_total",
			Help:      "Download outcomes",
		}, []string{"result"})
		r.installDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "install_duration_seconds",
			Help:      "Duration of an install attempt",
			Buckets:   prom.DefBuckets,
		})
		r.installResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "install_results_total",
			Help:      "Install outcomes by result kind",
		}, []string{"result"})
		r.bootloaderBlocks = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "bootloader_interlock_total",
			Help:      "Bootloader interlock decisions",
		}, []string{"decision"})
		r.diskWatermark = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "disk_available_for_update_bytes",
			Help:      "Bytes available for an update under the configured watermark",
		})
		reg.MustRegister(
			r.checkInDuration, r.checkInResults,
			r.downloadDuration, r.downloadResults,
			r.installDuration, r.installResults,
			r.bootloaderBlocks, r.diskWatermark,
		)
	})
	return r
}

func (r *Recorder) ObserveCheckIn(d time.Duration, result string) {
	if r == nil || r.checkInDuration == nil {
		return
	}
	r.checkInDuration.Observe(d.Seconds())
	r.checkInResults.WithLabelValues(result).Inc()
}

func (r *Recorder) ObserveDownload(remote string, d time.Duration, result string) {
	if r == nil || r.downloadDuration == nil {
		return
	}
	r.downloadDuration.WithLabelValues(remote, result).Observe(d.Seconds())
	r.downloadResults.WithLabelValues(result).Inc()
}

func (r *Recorder) ObserveInstall(d time.Duration, result string) {
	if r == nil || r.installDuration == nil {
		return
	}
	r.installDuration.Observe(d.Seconds())
	r.installResults.WithLabelValues(result).Inc()
}

func (r *Recorder) IncBootloaderDecision(decision string) {
	if r == nil || r.bootloaderBlocks == nil {
		return
	}
	r.bootloaderBlocks.WithLabelValues(decision).Inc()
}

func (r *Recorder) SetDiskAvailable(bytes float64) {
	if r == nil || r.diskWatermark == nil {
		return
	}
	r.diskWatermark.Set(bytes)
}
