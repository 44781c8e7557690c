// Package metrics exposes Prometheus metrics for scans, indexing and search.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the Prometheus collectors.
type Metrics struct {
	ScansTotal      *prometheus.CounterVec
	ScanDuration    *prometheus.HistogramVec
	ScansInProgress prometheus.Gauge
	ScanFilesTotal  *prometheus.CounterVec
	ScanProblems    *prometheus.CounterVec

	SearchesTotal  *prometheus.CounterVec
	SearchDuration *prometheus.HistogramVec

	ArtifactsDeleted *prometheus.CounterVec
}

// Get returns the process-wide metrics, registering them on first use.
//
// Metrics:
//   - relic_scans_total{repository,state}
//   - relic_scan_duration_seconds{repository}
//   - relic_scans_in_progress
//   - relic_scan_files_total{repository,outcome} with outcome included, consumed or skipped
//   - relic_scan_problems_total{repository,consumer}
//   - relic_searches_total{kind,result}
//   - relic_search_duration_seconds{kind}
//   - relic_artifacts_deleted_total{repository}
func Get() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			ScansTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "relic_scans_total",
					Help: "Total number of repository scans by final state",
				},
				[]string{"repository", "state"},
			),
			ScanDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "relic_scan_duration_seconds",
					Help:    "Duration of repository scans in seconds",
					Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
				},
				[]string{"repository"},
			),
			ScansInProgress: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "relic_scans_in_progress",
					Help: "Number of repository scans currently running",
				},
			),
			ScanFilesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "relic_scan_files_total",
					Help: "Total number of files seen by scans",
				},
				[]string{"repository", "outcome"},
			),
			ScanProblems: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "relic_scan_problems_total",
					Help: "Total number of per-file problems reported by scans",
				},
				[]string{"repository", "consumer"},
			),
			SearchesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "relic_searches_total",
					Help: "Total number of searches",
				},
				[]string{"kind", "result"},
			),
			SearchDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "relic_search_duration_seconds",
					Help:    "Duration of searches in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"kind"},
			),
			ArtifactsDeleted: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "relic_artifacts_deleted_total",
					Help: "Total number of artifacts removed from the indexes",
				},
				[]string{"repository"},
			),
		}
	})
	return globalMetrics
}

// ScanStarted marks a scan as running and returns a function that records its end.
func (m *Metrics) ScanStarted() (done func()) {
	m.ScansInProgress.Inc()
	return func() { m.ScansInProgress.Dec() }
}

// ScanResult is what a finished scan reports.
type ScanResult struct {
	Repository string
	State      string
	Elapsed    time.Duration
	Included   int64
	Consumed   int64
	Skipped    int64
	// Problems counts problems per consumer id; "" is used for walk problems.
	Problems map[string]int
}

// ObserveScan records a finished scan.
func (m *Metrics) ObserveScan(r ScanResult) {
	m.ScansTotal.WithLabelValues(r.Repository, r.State).Inc()
	m.ScanDuration.WithLabelValues(r.Repository).Observe(r.Elapsed.Seconds())
	m.ScanFilesTotal.WithLabelValues(r.Repository, "included").Add(float64(r.Included))
	m.ScanFilesTotal.WithLabelValues(r.Repository, "consumed").Add(float64(r.Consumed))
	m.ScanFilesTotal.WithLabelValues(r.Repository, "skipped").Add(float64(r.Skipped))
	for consumer, n := range r.Problems {
		if consumer == "" {
			consumer = "walk"
		}
		m.ScanProblems.WithLabelValues(r.Repository, consumer).Add(float64(n))
	}
}

// ObserveSearch records a search of the given kind.
func (m *Metrics) ObserveSearch(kind string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SearchesTotal.WithLabelValues(kind, result).Inc()
	m.SearchDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ArtifactDeleted records the removal of an artifact from a repository's indexes.
func (m *Metrics) ArtifactDeleted(repoID string) {
	m.ArtifactsDeleted.WithLabelValues(repoID).Inc()
}
