package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	apiRequestsTotal     *prometheus.CounterVec
	apiLatencySeconds    *prometheus.HistogramVec
	apiErrorsTotal       *prometheus.CounterVec
	gradedFilesTotal     *prometheus.CounterVec
	batchesFinishedTotal *prometheus.CounterVec
	batchDurationSeconds prometheus.Histogram
	batchesInFlight      prometheus.Gauge
	batchStreamClients   prometheus.Gauge
	batchEventsPublished *prometheus.CounterVec
	intakeRejectedFiles  prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autograde_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autograde_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autograde_api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		gradedFilesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autograde_graded_files_total",
			Help: "Files processed by the grading orchestrator by outcome.",
		}, []string{"outcome"})

		batchesFinishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autograde_batches_finished_total",
			Help: "Batches that reached a terminal status.",
		}, []string{"status"})

		batchDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autograde_batch_duration_seconds",
			Help:    "Wall time from dispatch to terminal status.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		})

		batchesInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autograde_batches_in_flight",
			Help: "Batches currently being graded by this node.",
		})

		batchStreamClients = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autograde_batch_stream_clients",
			Help: "Active websocket subscribers to batch status events.",
		})

		batchEventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autograde_batch_events_total",
			Help: "Batch status events delivered to local subscribers.",
		}, []string{"status"})

		intakeRejectedFiles = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autograde_intake_rejected_files_total",
			Help: "Uploaded files excluded from a batch by validation.",
		})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			gradedFilesTotal, batchesFinishedTotal, batchDurationSeconds, batchesInFlight,
			batchStreamClients, batchEventsPublished, intakeRejectedFiles,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// GradedFiles counts orchestrated files by outcome (graded, degraded, aborted).
func GradedFiles() *prometheus.CounterVec {
	RegisterMetrics()
	return gradedFilesTotal
}

// BatchesFinished counts terminal batch transitions by status.
func BatchesFinished() *prometheus.CounterVec {
	RegisterMetrics()
	return batchesFinishedTotal
}

// BatchDuration observes batch grading wall time.
func BatchDuration() prometheus.Histogram {
	RegisterMetrics()
	return batchDurationSeconds
}

// BatchesInFlight tracks batches being graded.
func BatchesInFlight() prometheus.Gauge {
	RegisterMetrics()
	return batchesInFlight
}

// BatchStreamClients tracks websocket subscribers.
func BatchStreamClients() prometheus.Gauge {
	RegisterMetrics()
	return batchStreamClients
}

// BatchEventsPublished counts batch events fanned out locally.
func BatchEventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return batchEventsPublished
}

// IntakeRejectedFiles counts files excluded at intake.
func IntakeRejectedFiles() prometheus.Counter {
	RegisterMetrics()
	return intakeRejectedFiles
}
