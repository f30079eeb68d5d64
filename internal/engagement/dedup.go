// Package engagement records banner impressions and clicks with per-session
// deduplication: an impression fires once per banner and session, clicks are
// throttled.
package engagement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickwarner/portalads/internal/db"
	"github.com/patrickwarner/portalads/internal/models"
	"github.com/patrickwarner/portalads/internal/schedule"
)

const (
	// DefaultClickThrottle is the window in which repeated clicks are dropped.
	DefaultClickThrottle = 1000 * time.Millisecond
	// DefaultImpressionTTL bounds how long an impression mark is remembered.
	// The session normally ends first.
	DefaultImpressionTTL = 24 * time.Hour
)

// DedupStore remembers keys for a while. MarkOnce returns true only for the
// call that created key; the key is forgotten after ttl.
type DedupStore interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

var (
	_ DedupStore = (*MemoryDedup)(nil)
	_ DedupStore = (*db.RedisStore)(nil)
)

// MemoryDedup is a process-local DedupStore.
type MemoryDedup struct {
	mu    sync.Mutex
	clock schedule.Clock
	keys  map[string]time.Time
	marks int
}

// NewMemoryDedup creates an empty MemoryDedup. A nil clock uses the system clock.
func NewMemoryDedup(clock schedule.Clock) *MemoryDedup {
	if clock == nil {
		clock = schedule.SystemClock{}
	}
	return &MemoryDedup{clock: clock, keys: make(map[string]time.Time)}
}

// MarkOnce implements DedupStore.
func (m *MemoryDedup) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if expiry, ok := m.keys[key]; ok && now.Before(expiry) {
		return false, nil
	}
	m.keys[key] = now.Add(ttl)

	m.marks++
	if m.marks%1024 == 0 {
		for k, expiry := range m.keys {
			if !now.Before(expiry) {
				delete(m.keys, k)
			}
		}
	}
	return true, nil
}

// Gate applies the fire-once and throttle rules to engagement events.
type Gate struct {
	store         DedupStore
	clickThrottle time.Duration
	impressionTTL time.Duration
}

// NewGate creates a Gate. Zero durations use the defaults.
func NewGate(store DedupStore, clickThrottle, impressionTTL time.Duration) *Gate {
	if clickThrottle <= 0 {
		clickThrottle = DefaultClickThrottle
	}
	if impressionTTL <= 0 {
		impressionTTL = DefaultImpressionTTL
	}
	return &Gate{store: store, clickThrottle: clickThrottle, impressionTTL: impressionTTL}
}

// Allow reports whether the event should be emitted. Impressions pass once
// per session and banner; clicks pass at most once per throttle window.
func (g *Gate) Allow(ctx context.Context, sessionID string, bannerID int, eventType string) (bool, error) {
	ttl := g.impressionTTL
	if eventType == models.EventClick {
		ttl = g.clickThrottle
	}
	key := fmt.Sprintf("engagement:%s:%d:%s", sessionID, bannerID, eventType)
	return g.store.MarkOnce(ctx, key, ttl)
}
