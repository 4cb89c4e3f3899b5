// Package observability holds the Prometheus metrics and the operational
// HTTP endpoints (health, metrics) of the service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// climate data and analysis pipeline.
type Metrics struct {
	FetchJobsStarted  prometheus.Counter
	FetchJobsFailed   prometheus.Counter
	FilesDownloaded   prometheus.Counter
	SubsetPollCycles  prometheus.Counter
	RetrievalRunning  prometheus.Gauge
	RetrievalDuration prometheus.Histogram

	// Dataset cache metrics.
	CacheLookups *prometheus.CounterVec // labels: result={hit,miss}

	// Analysis metrics.
	AnalysisDuration *prometheus.HistogramVec // labels: operation
	AnalysisErrors   *prometheus.CounterVec   // labels: operation

	// Geocoding metrics.
	GeocodeRequests *prometheus.CounterVec // labels: outcome={success,error,empty}
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FetchJobsStarted,
		m.FetchJobsFailed,
		m.FilesDownloaded,
		m.SubsetPollCycles,
		m.RetrievalRunning,
		m.RetrievalDuration,
		m.CacheLookups,
		m.AnalysisDuration,
		m.AnalysisErrors,
		m.GeocodeRequests,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchJobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "epiclim",
			Name:      "fetch_jobs_started_total",
			Help:      "Total climate data retrievals started.",
		}),
		FetchJobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "epiclim",
			Name:      "fetch_jobs_failed_total",
			Help:      "Total climate data retrievals that failed.",
		}),
		FilesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "epiclim",
			Name:      "files_downloaded_total",
			Help:      "Total archive files downloaded from remote sources.",
		}),
		SubsetPollCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "epiclim",
			Name:      "subset_poll_cycles_total",
			Help:      "Total poll sweeps over pending remote subsetting jobs.",
		}),
		RetrievalRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "epiclim",
			Name:      "retrieval_running",
			Help:      "1 when a retrieval is in progress, 0 otherwise.",
		}),
		RetrievalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "epiclim",
			Name:      "retrieval_duration_seconds",
			Help:      "Duration of a complete fetch-assemble-cache cycle.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epiclim",
			Name:      "cache_lookups_total",
			Help:      "Processed dataset cache lookups by result.",
		}, []string{"result"}),
		AnalysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "epiclim",
			Name:      "analysis_duration_seconds",
			Help:      "Duration of analysis operations by operation name.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"operation"}),
		AnalysisErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epiclim",
			Name:      "analysis_errors_total",
			Help:      "Analysis operation failures by operation name.",
		}, []string{"operation"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epiclim",
			Name:      "geocode_requests_total",
			Help:      "Geocoding requests by outcome.",
		}, []string{"outcome"}),
	}
}
