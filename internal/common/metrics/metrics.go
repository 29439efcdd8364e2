// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ==========================
// LIFECYCLE METRICS
// ==========================

var (
	// TransitionsTotal counts completed lifecycle operations by kind.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certificate_transitions_total",
			Help: "Total number of completed request lifecycle operations",
		},
		[]string{"operation"},
	)

	// TransitionFailuresTotal counts failed lifecycle operations by kind
	// and error code.
	TransitionFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certificate_transition_failures_total",
			Help: "Total number of failed request lifecycle operations",
		},
		[]string{"operation", "error_code"},
	)

	// TransitionDuration observes end-to-end lifecycle operation latency.
	TransitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "certificate_transition_duration_seconds",
			Help:    "Duration of request lifecycle operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// ==========================
// SIGNING SERVICE METRICS
// ==========================

var (
	// SigningRequestsTotal counts calls to the external signing service.
	SigningRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signing_requests_total",
			Help: "Total number of signing service calls",
		},
		[]string{"status"},
	)

	// SigningDuration observes signing service call latency.
	SigningDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "signing_request_duration_seconds",
			Help:    "Duration of signing service calls",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
)

// ==========================
// HTTP METRICS
// ==========================

var (
	// HTTPRequestsTotal counts handled HTTP requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of handled HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes HTTP handler latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
