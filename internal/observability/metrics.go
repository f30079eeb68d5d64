package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalads_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portalads_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// capacity validations labelled by outcome (valid, conflict, error)
	ValidationCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalads_validations_total",
			Help: "Total slot capacity validations",
		},
		[]string{"outcome"},
	)

	// banners deactivated by conflict resolution per slot
	DeactivatedBanners = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalads_conflict_deactivations_total",
			Help: "Total banners deactivated to resolve slot conflicts",
		},
		[]string{"slot"},
	)

	// delivery cache lookups labelled by outcome
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalads_delivery_cache_lookups_total",
			Help: "Delivery cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	// delivery cache invalidations labelled by source (local, remote)
	CacheInvalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalads_delivery_cache_invalidations_total",
			Help: "Delivery cache invalidations",
		},
		[]string{"source"},
	)

	// engagement events recorded, labelled by type
	EventCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalads_events_total",
			Help: "Total engagement events recorded",
		},
		[]string{"type"},
	)

	// engagement events suppressed before recording, labelled by reason
	EventDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalads_events_dropped_total",
			Help: "Engagement events suppressed or lost",
		},
		[]string{"reason"},
	)

	// rate limit hits on the engagement sink
	RateLimitHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "portalads_ratelimit_hits_total",
			Help: "Total requests rejected by the rate limiter",
		},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		ValidationCount,
		DeactivatedBanners,
		CacheLookups,
		CacheInvalidations,
		EventCount,
		EventDropped,
		RateLimitHits,
	)
}
