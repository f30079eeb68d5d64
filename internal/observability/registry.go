package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics
// This replaces direct access to global Prometheus metrics with dependency injection
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Placement metrics
	IncrementValidations(outcome string)
	AddDeactivations(slot string, count int)

	// Delivery cache metrics
	IncrementCacheLookups(outcome string)
	IncrementCacheInvalidations(source string)

	// Engagement metrics
	IncrementEvent(eventType string)
	IncrementEventDropped(reason string)
	IncrementRateLimitHits()
}

// PrometheusRegistry implements MetricsRegistry using the existing global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

// HTTP Request metrics
func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// Placement metrics
func (r *PrometheusRegistry) IncrementValidations(outcome string) {
	ValidationCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) AddDeactivations(slot string, count int) {
	DeactivatedBanners.WithLabelValues(slot).Add(float64(count))
}

// Delivery cache metrics
func (r *PrometheusRegistry) IncrementCacheLookups(outcome string) {
	CacheLookups.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) IncrementCacheInvalidations(source string) {
	CacheInvalidations.WithLabelValues(source).Inc()
}

// Engagement metrics
func (r *PrometheusRegistry) IncrementEvent(eventType string) {
	EventCount.WithLabelValues(eventType).Inc()
}

func (r *PrometheusRegistry) IncrementEventDropped(reason string) {
	EventDropped.WithLabelValues(reason).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitHits() {
	RateLimitHits.Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementValidations(outcome string)                                  {}
func (r *NoOpRegistry) AddDeactivations(slot string, count int)                              {}
func (r *NoOpRegistry) IncrementCacheLookups(outcome string)                                 {}
func (r *NoOpRegistry) IncrementCacheInvalidations(source string)                            {}
func (r *NoOpRegistry) IncrementEvent(eventType string)                                      {}
func (r *NoOpRegistry) IncrementEventDropped(reason string)                                  {}
func (r *NoOpRegistry) IncrementRateLimitHits()                                              {}
