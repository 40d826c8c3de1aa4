package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook ingestion metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callrelay_events_total",
			Help: "Total number of webhook events received",
		},
		[]string{"endpoint", "status"},
	)

	DuplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "callrelay_duplicates_total",
			Help: "Total number of duplicate call IDs rejected",
		},
	)

	// Queue metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "callrelay_queue_depth",
			Help: "Current depth of the call queue",
		},
	)

	QueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "callrelay_queue_capacity",
			Help: "Maximum capacity of the call queue",
		},
	)

	// Batch writer metrics
	FlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "callrelay_flush_duration_seconds",
			Help:    "Duration of batch flushes to the sheet bridge in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FlushSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "callrelay_flush_size_rows",
			Help:    "Number of rows per batch flush",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		},
	)

	FlushErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "callrelay_flush_errors_total",
			Help: "Total number of failed flush attempts",
		},
	)

	FlushRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "callrelay_flush_retries_total",
			Help: "Total number of flush retries",
		},
	)

	DLQWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callrelay_dlq_writes_total",
			Help: "Total number of calls written to the dead letter queue",
		},
		[]string{"reason"},
	)

	// Realtime cache metrics
	RealtimeCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "callrelay_realtime_cache_size",
			Help: "Number of DIDs in the realtime cache",
		},
	)

	RealtimeRefreshErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "callrelay_realtime_refresh_errors_total",
			Help: "Total number of failed realtime cache refreshes",
		},
	)

	// Map rebuild metrics
	RebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "callrelay_rebuild_duration_seconds",
			Help:    "Duration of DID publisher map rebuilds in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RebuildErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "callrelay_rebuild_errors_total",
			Help: "Total number of failed map rebuilds",
		},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "callrelay_rate_limit_hits_total",
			Help: "Total number of rate limited webhook requests",
		},
	)
)
