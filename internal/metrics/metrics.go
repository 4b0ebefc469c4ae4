package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Throughput metrics - Track scan and decode volume
var (
	TransactionsFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kasocial_transactions_fetched_total",
		Help: "Total number of raw transactions fetched from the ledger",
	})

	PayloadsDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kasocial_payloads_decoded_total",
		Help: "Total number of transactions that decoded as protocol messages",
	})

	PayloadsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kasocial_payloads_skipped_total",
		Help: "Total number of transactions skipped as non-protocol content",
	})

	SegmentsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kasocial_segments_submitted_total",
		Help: "Total number of story segments successfully published",
	})

	SubmitRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kasocial_submit_retries_total",
		Help: "Total number of segment submit attempts that failed and were retried",
	})
)

// Reconstruction metrics - Track chain replay outcomes
var (
	StoriesReconstructed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kasocial_stories_reconstructed_total",
			Help: "Total number of story reconstructions by outcome",
		},
		[]string{"outcome"}, // complete, incomplete, invalid
	)

	ChainIntegrityFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kasocial_chain_integrity_failures_total",
		Help: "Total number of segment chains rejected for bad linkage or timestamp skew",
	})

	ProfilesBuilt = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kasocial_profiles_built_total",
		Help: "Total number of profile reconstructions",
	})
)

// Cache metrics - Track view cache effectiveness
var (
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kasocial_cache_hits_total",
			Help: "Total number of view cache hits by cache name",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kasocial_cache_misses_total",
			Help: "Total number of view cache misses by cache name",
		},
		[]string{"cache"},
	)
)

// Performance metrics - Track suspension-point latency
var (
	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kasocial_fetch_duration_seconds",
		Help:    "Time taken by a single ledger fetch including retries",
		Buckets: prometheus.DefBuckets,
	})

	FeedBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kasocial_feed_build_duration_seconds",
		Help:    "Time taken to build one feed view from raw candidates",
		Buckets: prometheus.DefBuckets,
	})
)

// State metrics - Track current system state
var (
	ActiveWrites = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kasocial_active_writes",
		Help: "Number of segmented-write attempts currently in flight",
	})

	ResumableWrites = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kasocial_resumable_writes",
		Help: "Number of failed write attempts waiting for a resume call",
	})
)
