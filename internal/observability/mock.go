package observability

import (
	"sync"
	"time"
)

var _ MetricsRegistry = (*MockMetricsRegistry)(nil)

// MockMetricsRegistry counts calls so tests can assert on recorded metrics.
type MockMetricsRegistry struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMockMetricsRegistry creates an empty MockMetricsRegistry.
func NewMockMetricsRegistry() *MockMetricsRegistry {
	return &MockMetricsRegistry{counts: make(map[string]int)}
}

func (m *MockMetricsRegistry) add(key string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[key] += n
}

// Count returns how often the metric identified by key was recorded,
// e.g. "cache_lookup:hit" or "event:click".
func (m *MockMetricsRegistry) Count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string) {
	m.add("request:"+endpoint+":"+status, 1)
}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementValidations(outcome string)                                  { m.add("validation:"+outcome, 1) }
func (m *MockMetricsRegistry) AddDeactivations(slot string, count int)                              { m.add("deactivated:"+slot, count) }
func (m *MockMetricsRegistry) IncrementCacheLookups(outcome string)                                 { m.add("cache_lookup:"+outcome, 1) }
func (m *MockMetricsRegistry) IncrementCacheInvalidations(source string)                            { m.add("cache_invalidation:"+source, 1) }
func (m *MockMetricsRegistry) IncrementEvent(eventType string)                                      { m.add("event:"+eventType, 1) }
func (m *MockMetricsRegistry) IncrementEventDropped(reason string)                                  { m.add("event_dropped:"+reason, 1) }
func (m *MockMetricsRegistry) IncrementRateLimitHits()                                              { m.add("ratelimit_hit", 1) }
