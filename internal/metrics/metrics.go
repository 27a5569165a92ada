// Package metrics collects pipeline counters in a private Prometheus registry
// and exports them in the node-exporter textfile format after each run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"earthgazer/internal/store"
)

const namespace = "earthgazer"

// Outcome labels for composite attempts.
const (
	OutcomeAssembled     = "assembled"
	OutcomeMissingBand   = "missing_band"
	OutcomeDuplicateBand = "duplicate_band"
	OutcomeFailed        = "failed"
	OutcomeExisting      = "existing"
)

// Recorder owns the pipeline collectors. A nil Recorder ignores every call.
type Recorder struct {
	registry *prometheus.Registry

	capturesIngested  *prometheus.CounterVec
	catalogDuplicates *prometheus.CounterVec
	catalogErrors     *prometheus.CounterVec
	filesTracked      *prometheus.CounterVec
	filesBackedUp     *prometheus.CounterVec
	transferRetries   prometheus.Counter
	composites        *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	captureStatus     *prometheus.GaugeVec
	lastRun           prometheus.Gauge
}

// New registers the pipeline collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		capturesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_ingested_total",
			Help:      "Captures inserted from the catalog.",
		}, []string{"platform"}),
		catalogDuplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_duplicates_total",
			Help:      "Catalog rows skipped because the capture already existed.",
		}, []string{"platform"}),
		catalogErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_errors_total",
			Help:      "Catalog queries that failed for a location.",
		}, []string{"platform"}),
		filesTracked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_tracked_total",
			Help:      "Band assets discovered and recorded.",
		}, []string{"platform"}),
		filesBackedUp: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_backed_up_total",
			Help:      "Band assets copied into project storage.",
		}, []string{"platform"}),
		transferRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_retries_total",
			Help:      "Object copies retried after a transient failure.",
		}),
		composites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "composites_total",
			Help:      "Composite assembly attempts by outcome.",
		}, []string{"platform", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage run.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"stage"}),
		captureStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "captures",
			Help:      "Captures by lifecycle status.",
		}, []string{"status"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last pipeline stage finished.",
		}),
	}
	r.registry.MustRegister(
		r.capturesIngested,
		r.catalogDuplicates,
		r.catalogErrors,
		r.filesTracked,
		r.filesBackedUp,
		r.transferRetries,
		r.composites,
		r.stageDuration,
		r.captureStatus,
		r.lastRun,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) CaptureIngested(platform string) {
	if r != nil {
		r.capturesIngested.WithLabelValues(platform).Inc()
	}
}

func (r *Recorder) CatalogDuplicate(platform string) {
	if r != nil {
		r.catalogDuplicates.WithLabelValues(platform).Inc()
	}
}

func (r *Recorder) CatalogError(platform string) {
	if r != nil {
		r.catalogErrors.WithLabelValues(platform).Inc()
	}
}

func (r *Recorder) FilesTracked(platform string, n int) {
	if r != nil && n > 0 {
		r.filesTracked.WithLabelValues(platform).Add(float64(n))
	}
}

func (r *Recorder) FileBackedUp(platform string) {
	if r != nil {
		r.filesBackedUp.WithLabelValues(platform).Inc()
	}
}

func (r *Recorder) TransferRetry() {
	if r != nil {
		r.transferRetries.Inc()
	}
}

func (r *Recorder) Composite(platform, outcome string) {
	if r != nil {
		r.composites.WithLabelValues(platform, outcome).Inc()
	}
}

// ObserveStage records how long a stage ran and stamps the last-run gauge.
func (r *Recorder) ObserveStage(stage string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	r.lastRun.SetToCurrentTime()
}

// SetStatusCounts replaces the per-status capture gauges.
func (r *Recorder) SetStatusCounts(counts map[store.CaptureStatus]int) {
	if r == nil {
		return
	}
	for _, status := range store.CaptureStatuses() {
		r.captureStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

// WriteTextfile writes the registry for the node-exporter textfile collector.
// An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
