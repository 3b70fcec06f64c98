// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the pyexec server.
package observability

import "github.com/prometheus/client_golang/prometheus"

// ExecutionBuckets defines histogram buckets for user code run times,
// ranging from 50ms to one hour.
var ExecutionBuckets = []float64{0.05, 0.25, 1, 5, 15, 60, 300, 900, 1800, 3600}

// RequestBuckets covers HTTP handling latency. Execution requests block for
// the whole run, so the upper buckets match ExecutionBuckets.
var RequestBuckets = []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 30, 120, 600, 3600}

var (
	// RequestsTotal counts all HTTP requests by method, route, and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pyexec_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pyexec_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: RequestBuckets,
		},
		[]string{"method", "route"},
	)

	// ResponseBytesTotal counts response body bytes by route.
	ResponseBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pyexec_response_bytes_total",
			Help: "HTTP response body bytes",
		},
		[]string{"route"},
	)

	// ExecutionsTotal counts finished executions by outcome
	// (completed, failed, timed_out, cancelled).
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pyexec_executions_total",
			Help: "Code executions by outcome",
		},
		[]string{"outcome"},
	)

	// ExecutionDuration records wall-clock execution time in seconds.
	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pyexec_execution_duration_seconds",
			Help:    "Code execution duration",
			Buckets: ExecutionBuckets,
		},
		[]string{"outcome"},
	)

	// ExecutionsInFlight tracks executions currently holding a slot.
	ExecutionsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pyexec_executions_in_flight",
			Help: "Executions currently running",
		},
	)

	// ExecutionsRejectedTotal counts executions refused because all slots were busy.
	ExecutionsRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pyexec_executions_rejected_total",
			Help: "Executions rejected at capacity",
		},
	)

	// UploadsTotal counts object storage uploads by status (ok, error).
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pyexec_uploads_total",
			Help: "Output file uploads",
		},
		[]string{"status"},
	)

	// UploadBytesTotal counts bytes written to object storage.
	UploadBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pyexec_upload_bytes_total",
			Help: "Bytes uploaded to object storage",
		},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pyexec_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ResponseBytesTotal,
		ExecutionsTotal,
		ExecutionDuration,
		ExecutionsInFlight,
		ExecutionsRejectedTotal,
		UploadsTotal,
		UploadBytesTotal,
		RateLimitRejectedTotal,
	)
}
