// Package metrics provides Prometheus metrics for the static server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "static_server_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "static_server_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Scan metrics
	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "static_server_scans_total",
			Help: "Total number of tree scans",
		},
		[]string{"trigger"},
	)

	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "static_server_scan_duration_seconds",
			Help:    "Time to rebuild the tree snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	snapshotEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "static_server_snapshot_entries",
			Help: "Number of files and directories in the current snapshot",
		},
	)

	// Checksum metrics
	filesHashedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "static_server_files_hashed_total",
			Help: "Total files whose checksums were computed",
		},
	)

	checksumCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "static_server_checksum_cache_hits_total",
			Help: "Total checksum lookups served from the cache",
		},
	)

	// SSE metrics
	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "static_server_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	sseEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "static_server_sse_events_total",
			Help: "Total SSE events published",
		},
	)

	subscribersDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "static_server_subscribers_dropped_total",
			Help: "Subscribers dropped because their buffer overflowed",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordScan records one completed tree scan.
func RecordScan(trigger string, duration time.Duration, entries int) {
	scansTotal.WithLabelValues(trigger).Inc()
	scanDuration.Observe(duration.Seconds())
	snapshotEntries.Set(float64(entries))
}

// RecordFileHashed counts one checksum computation.
func RecordFileHashed() {
	filesHashedTotal.Inc()
}

// RecordCacheHit counts one checksum served from the cache.
func RecordCacheHit() {
	checksumCacheHitsTotal.Inc()
}

// SetSSEConnectionsActive sets the active SSE connection gauge.
func SetSSEConnectionsActive(n int) {
	sseConnectionsActive.Set(float64(n))
}

// RecordSSEEvent counts one published SSE event.
func RecordSSEEvent() {
	sseEventsTotal.Inc()
}

// RecordSubscriberDropped counts one subscriber dropped for slowness.
func RecordSubscriberDropped() {
	subscribersDroppedTotal.Inc()
}
