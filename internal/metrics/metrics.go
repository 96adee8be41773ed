package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contentsync",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	syncItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contentsync",
			Name:      "sync_items_total",
			Help:      "Processed sync queue items by content type and result.",
		},
		[]string{"content_type", "result"},
	)

	syncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "contentsync",
			Name:      "sync_item_duration_seconds",
			Help:      "Time spent applying a single queue item.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"content_type"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "contentsync",
			Name:      "sync_queue_depth",
			Help:      "Queue items by status.",
		},
		[]string{"status"},
	)

	cacheEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "contentsync",
			Name:      "cache_entries",
			Help:      "Cache entries by freshness.",
		},
		[]string{"state"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, syncItems, syncDuration, queueDepth, cacheEntries)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// ObserveSyncItem records one processed queue item.
func ObserveSyncItem(contentType string, success bool, elapsed time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	syncItems.WithLabelValues(contentType, result).Inc()
	syncDuration.WithLabelValues(contentType).Observe(elapsed.Seconds())
}

// SetQueueDepth publishes the current queue size for a status label.
func SetQueueDepth(status string, n int) {
	queueDepth.WithLabelValues(status).Set(float64(n))
}

// SetCacheEntries publishes cache entry counts by state (active/expired).
func SetCacheEntries(state string, n int) {
	cacheEntries.WithLabelValues(state).Set(float64(n))
}
