package http

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
// It doubles as the observer for backend calls, job submissions and rate
// limit rejections.
type Metrics struct {
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	InFlightRequests    prometheus.Gauge
	BackendCallsTotal   *prometheus.CounterVec
	BackendCallDuration *prometheus.HistogramVec
	JobSubmissionsTotal *prometheus.CounterVec
	RateLimitedTotal    prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edgegate",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "status"}, // status=2xx/4xx/5xx/499
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "edgegate",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		InFlightRequests: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "edgegate",
				Name:      "in_flight_requests",
				Help:      "Number of requests currently being served",
			},
		),
		BackendCallsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edgegate",
				Name:      "backend_calls_total",
				Help:      "Total broker calls by backend and outcome",
			},
			[]string{"backend", "outcome"},
		),
		BackendCallDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "edgegate",
				Name:      "backend_call_duration_seconds",
				Help:      "Broker call round-trip time in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"backend"},
		),
		JobSubmissionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edgegate",
				Name:      "job_submissions_total",
				Help:      "Bulk job submissions by transport used",
			},
			[]string{"transport"}, // HTTP_DIRECT/BROKER_FALLBACK
		),
		RateLimitedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "edgegate",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the per-client rate limit",
			},
		),
	}
}

// ObserveBackendCall records one broker call.
func (m *Metrics) ObserveBackendCall(backend, outcome string, elapsed time.Duration) {
	m.BackendCallsTotal.WithLabelValues(backend, outcome).Inc()
	m.BackendCallDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
}

// ObserveJobSubmission records one bulk submission.
func (m *Metrics) ObserveJobSubmission(transport string) {
	m.JobSubmissionsTotal.WithLabelValues(transport).Inc()
}

// ObserveRateLimited records one rejected request.
func (m *Metrics) ObserveRateLimited() {
	m.RateLimitedTotal.Inc()
}
