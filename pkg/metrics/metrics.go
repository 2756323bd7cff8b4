package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ilix_http_requests_total",
			Help: "Total number of HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ilix_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Event stream metrics
	SSEClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ilix_sse_clients",
			Help: "Number of connected event-stream subscribers",
		},
	)

	SSEEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ilix_sse_events_total",
			Help: "Total number of broadcast events by kind",
		},
		[]string{"kind"},
	)

	// Blob metrics
	BlobsUploadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ilix_blobs_uploaded_total",
			Help: "Total number of encrypted blobs stored",
		},
	)

	BlobsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ilix_blobs_deleted_total",
			Help: "Total number of encrypted blobs deleted",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SSEClients,
		SSEEventsTotal,
		BlobsUploadedTotal,
		BlobsDeletedTotal,
	)
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
