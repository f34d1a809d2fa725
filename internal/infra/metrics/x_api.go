package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(xRequestsTotal, xRequestDuration, xBreakerOpen) }

var (
	xRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "x_api_requests_total",
			Help: "X API requests by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)
	xRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "x_api_request_duration_seconds",
			Help:    "X API request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	xBreakerOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "x_api_breaker_open",
		Help: "1 while the X API circuit breaker is open.",
	})
)

func ObserveXRequest(endpoint, outcome string, seconds float64) {
	xRequestsTotal.WithLabelValues(norm(endpoint), norm(outcome)).Inc()
	xRequestDuration.WithLabelValues(norm(endpoint)).Observe(seconds)
}

func SetXBreakerOpen(open bool) {
	if open {
		xBreakerOpen.Set(1)
		return
	}
	xBreakerOpen.Set(0)
}
