package process

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records what the server does.
type Metrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	bytes       *prometheus.CounterVec
	rateLimited prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osmapi_requests_total",
				Help: "Total number of processed requests",
			},
			[]string{"handler", "method", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "osmapi_request_duration_seconds",
				Help:    "Duration of request processing in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"handler", "method"},
		),
		bytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osmapi_response_bytes_total",
				Help: "Total number of response body bytes sent to clients",
			},
			[]string{"handler"},
		),
		rateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "osmapi_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
		),
	}
}

// observe records a completed request. The handler label is the route pattern so it stays bounded.
func (m *Metrics) observe(route, method string, status int, bytes int64, elapsed time.Duration) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(route, method).Observe(elapsed.Seconds())
	if bytes > 0 {
		m.bytes.WithLabelValues(route).Add(float64(bytes))
	}
}
