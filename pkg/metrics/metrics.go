package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the guard service
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  *prometheus.GaugeVec

	// Rate limiting metrics
	RateLimitAllowed   *prometheus.CounterVec
	RateLimitRejected  *prometheus.CounterVec
	QuotaStoreFailures prometheus.Counter

	// Image proxy metrics
	ProxyRequestsTotal *prometheus.CounterVec
	ProxyStageDuration *prometheus.HistogramVec
	ProxyFetchedBytes  prometheus.Histogram
	ProxyOutputBytes   prometheus.Histogram
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgguard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "imgguard_http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		ActiveRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "imgguard_http_requests_active",
				Help: "Number of in-flight HTTP requests",
			},
			[]string{"method", "path"},
		),

		// Rate limiting metrics
		RateLimitAllowed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgguard_rate_limit_allowed_total",
				Help: "Total number of requests allowed by the rate limiter",
			},
			[]string{"scope"},
		),
		RateLimitRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgguard_rate_limit_rejected_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"scope"},
		),
		QuotaStoreFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "imgguard_quota_store_failures_total",
				Help: "Total number of quota store round-trips that failed",
			},
		),

		// Image proxy metrics
		ProxyRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgguard_proxy_requests_total",
				Help: "Total number of image proxy requests by outcome code",
			},
			[]string{"code"},
		),
		ProxyStageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "imgguard_proxy_stage_duration_seconds",
				Help:    "Image proxy stage latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		ProxyFetchedBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "imgguard_proxy_fetched_bytes",
				Help:    "Size of fetched upstream images in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8), // 1KiB to 16MiB
			},
		),
		ProxyOutputBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "imgguard_proxy_output_bytes",
				Help:    "Size of transcoded output images in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
			},
		),
	}
}

// NormalizePath normalizes the path for metrics labels to avoid high cardinality
func NormalizePath(path string) string {
	const maxLength = 50
	if len(path) > maxLength {
		return path[:maxLength] + "..."
	}
	return path
}
