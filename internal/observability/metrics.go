package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PageFetches counts feed page fetches by kind (initial, more) and outcome.
	PageFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_page_fetches_total",
		Help: "Total number of feed page fetches by kind and outcome",
	}, []string{"kind", "outcome"})

	// PageFetchLatency records the time to assemble a feed page including details.
	PageFetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedsync_page_fetch_latency_seconds",
		Help:    "Feed page assembly latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// Mutations counts optimistic mutations by kind and outcome (committed, rolled_back).
	Mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_mutations_total",
		Help: "Total number of optimistic mutations by kind and outcome",
	}, []string{"kind", "outcome"})

	// RealtimeEvents counts change events received by type and whether they were counted.
	RealtimeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_realtime_events_total",
		Help: "Total realtime change events received",
	}, []string{"event_type", "result"})

	// RealtimeResubscribes counts subscription restarts after a failure.
	RealtimeResubscribes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsync_realtime_resubscribes_total",
		Help: "Total number of realtime resubscribe attempts",
	})

	// PendingNewPosts is the current new-posts signal value.
	PendingNewPosts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feedsync_pending_new_posts",
		Help: "Number of new posts announced since the last refresh",
	})

	// CacheOperations counts persistence cache operations by op and outcome.
	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_cache_operations_total",
		Help: "Total persistence cache operations",
	}, []string{"op", "outcome"})

	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// UIConnections is the gauge of connected UI websocket clients.
	UIConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feedsync_ui_connections",
		Help: "Number of connected UI websocket clients",
	})

	// UIBackpressureDrops counts UI messages dropped because a client was slow.
	UIBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_ui_backpressure_drops_total",
		Help: "Total number of UI websocket messages dropped due to backpressure",
	}, []string{"reason"})
)

// Outcome labels shared by the counters above.
const (
	OutcomeSuccess    = "success"
	OutcomeError      = "error"
	OutcomeDiscarded  = "discarded"
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
)

// TrackPageFetch returns a function that records latency and outcome for a page fetch.
func TrackPageFetch(kind string) func(outcome string) {
	start := time.Now()
	return func(outcome string) {
		PageFetchLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		PageFetches.WithLabelValues(kind, outcome).Inc()
	}
}

// RecordCacheOp increments the cache operation counter.
func RecordCacheOp(op string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	CacheOperations.WithLabelValues(op, outcome).Inc()
}
