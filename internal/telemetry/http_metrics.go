package telemetry

import "github.com/prometheus/client_golang/prometheus"

// HTTPRequestDuration is registered once per process and referenced
// directly by the httpserver middleware, mirroring how the vendored core
// telemetry package exposed it as a package-level collector.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "moderator",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)
