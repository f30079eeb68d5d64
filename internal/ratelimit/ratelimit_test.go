package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/patrickwarner/portalads/internal/observability"
)

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func TestTokenBucket_Allow(t *testing.T) {
	clock := &fakeNow{t: time.Unix(0, 0)}
	bucket := NewTokenBucket(5, 1, clock.Now)

	for i := 0; i < 5; i++ {
		assert.True(t, bucket.Allow(), "request %d", i+1)
	}
	assert.False(t, bucket.Allow())

	hits, total := bucket.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(6), total)
}

func TestTokenBucket_Refill(t *testing.T) {
	clock := &fakeNow{t: time.Unix(0, 0)}
	bucket := NewTokenBucket(2, 10, clock.Now)

	bucket.Allow()
	bucket.Allow()
	assert.False(t, bucket.Allow())

	// Partial intervals accumulate.
	clock.Advance(50 * time.Millisecond)
	assert.False(t, bucket.Allow())
	clock.Advance(50 * time.Millisecond)
	assert.True(t, bucket.Allow())

	clock.Advance(time.Hour)
	assert.True(t, bucket.Full())
}

func TestKeyedLimiter(t *testing.T) {
	clock := &fakeNow{t: time.Unix(0, 0)}
	metrics := observability.NewMockMetricsRegistry()
	l := NewKeyedLimiter(Config{Capacity: 2, RefillRate: 1, Enabled: true}, metrics, clock.Now)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))
	assert.Equal(t, 1, metrics.Count("ratelimit_hit"))
	assert.Equal(t, 2, l.Len())

	clock.Advance(5 * time.Second)
	assert.Equal(t, 2, l.Prune())
	assert.Equal(t, 0, l.Len())
}

func TestKeyedLimiterDisabled(t *testing.T) {
	l := NewKeyedLimiter(Config{Capacity: 0, Enabled: false}, observability.NewNoOpRegistry(), nil)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("k"))
	}
	assert.Equal(t, 0, l.Len())
}
