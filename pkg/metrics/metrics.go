// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagekit",
			Name:      "requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		}, []string{"endpoint", "status"})

	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imagekit",
		Name:      "cache_hits_total",
		Help:      "Transform requests served from the artifact cache.",
	})

	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imagekit",
		Name:      "cache_misses_total",
		Help:      "Transform requests that had to produce a new artifact.",
	})

	SingleflightMerges = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imagekit",
		Name:      "singleflight_merges_total",
		Help:      "Requests merged into another in-flight production of the same key.",
	})

	FetchBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imagekit",
		Name:      "fetch_bytes_total",
		Help:      "Bytes downloaded from upstream sources.",
	})

	FetchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imagekit",
		Name:      "fetch_errors_total",
		Help:      "Failed upstream fetches.",
	})

	TransformDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "imagekit",
			Name:      "transform_duration_seconds",
			Help:      "Time spent decoding, resizing and encoding, by output format.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"format"})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(SingleflightMerges)
	prometheus.MustRegister(FetchBytes)
	prometheus.MustRegister(FetchErrors)
	prometheus.MustRegister(TransformDuration)
}

// Handler serves the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
