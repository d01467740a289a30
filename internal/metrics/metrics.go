package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pactum_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pactum_http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "path"},
	)

	// Explorer API metrics
	ExplorerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pactum_explorer_requests_total",
			Help: "Total number of block explorer API requests",
		},
		[]string{"explorer", "status"},
	)
	ExplorerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pactum_explorer_request_duration_seconds",
			Help: "Duration of block explorer API requests in seconds",
		},
		[]string{"explorer"},
	)

	// Verification and lifecycle metrics
	VerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pactum_verifications_total",
			Help: "Payment verifications by network and outcome code",
		},
		[]string{"network", "outcome"},
	)
	PaymentsAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pactum_payments_applied_total",
			Help: "Payments credited to subscriptions",
		},
		[]string{"network"},
	)
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pactum_subscription_transitions_total",
			Help: "Subscription status transitions",
		},
		[]string{"from", "to"},
	)
	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "pactum_sweep_duration_seconds",
			Help: "Duration of subscription sweeps in seconds",
		},
	)
	SweepFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pactum_sweep_failures_total",
			Help: "Subscriptions the sweep could not persist",
		},
	)
)

// InitMetrics registers every collector on the default registry. Call it once from main.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)

	prometheus.MustRegister(ExplorerRequestsTotal)
	prometheus.MustRegister(ExplorerRequestDuration)

	prometheus.MustRegister(VerificationsTotal)
	prometheus.MustRegister(PaymentsAppliedTotal)
	prometheus.MustRegister(TransitionsTotal)
	prometheus.MustRegister(SweepDuration)
	prometheus.MustRegister(SweepFailures)
}
