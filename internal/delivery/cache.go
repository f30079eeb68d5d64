// Package delivery serves the eligible banners of a slot through a short-lived
// read-through cache.
package delivery

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/patrickwarner/portalads/internal/models"
	"github.com/patrickwarner/portalads/internal/observability"
	"github.com/patrickwarner/portalads/internal/schedule"
)

// DefaultTTL is how long a computed eligible set may be served.
const DefaultTTL = 5 * time.Minute

// Loader computes the eligible banners of a slot and scope in rotation order.
type Loader interface {
	Load(ctx context.Context, slotName, scope string) ([]models.Banner, error)
}

// Broadcaster tells other instances that a slot changed.
type Broadcaster interface {
	PublishInvalidation(ctx context.Context, slotName string) error
}

type cacheKey struct {
	slot  string
	scope string
}

func (k cacheKey) String() string { return k.slot + "\x00" + k.scope }

// flightKey ties a shared load to the slot generation it started under, so a
// read issued after an invalidation never joins a load that predates it.
type flightKey struct {
	cacheKey
	gen uint64
}

func (k flightKey) String() string {
	return k.cacheKey.String() + "\x00" + strconv.FormatUint(k.gen, 10)
}

type cacheEntry struct {
	banners   []models.Banner
	fetchedAt time.Time
}

func (e *cacheEntry) isExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.fetchedAt) > ttl
}

type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Stats summarizes cache contents and traffic.
type Stats struct {
	Entries int   `json:"entries"`
	Expired int   `json:"expired"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Stale   int64 `json:"stale"`
	Empty   int64 `json:"empty"`
}

// Cache is a read-through cache of eligible banners keyed by slot and scope.
// Concurrent misses for one key share a single load.
type Cache struct {
	loader      Loader
	ttl         time.Duration
	clock       schedule.Clock
	logger      *zap.Logger
	metrics     observability.MetricsRegistry
	broadcaster Broadcaster

	mu      sync.RWMutex
	entries map[cacheKey]*cacheEntry
	// evicted keeps the last list of an invalidated key as a fallback for a
	// failed reload.
	evicted map[cacheKey]*cacheEntry
	// gens counts invalidations per slot so loads started before a write are not stored.
	gens  map[string]uint64
	stats Stats

	group    singleflight.Group
	flightMu sync.Mutex
	flights  map[flightKey]*flight
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock sets the clock used to age entries.
func WithClock(clock schedule.Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

// WithBroadcaster publishes every local invalidation to other instances.
func WithBroadcaster(b Broadcaster) Option {
	return func(c *Cache) { c.broadcaster = b }
}

// NewCache creates a Cache in front of loader.
func NewCache(loader Loader, logger *zap.Logger, metrics observability.MetricsRegistry, opts ...Option) *Cache {
	c := &Cache{
		loader:  loader,
		ttl:     DefaultTTL,
		clock:   schedule.SystemClock{},
		logger:  logger,
		metrics: metrics,
		entries: make(map[cacheKey]*cacheEntry),
		evicted: make(map[cacheKey]*cacheEntry),
		gens:    make(map[string]uint64),
		flights: make(map[flightKey]*flight),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured time to live.
func (c *Cache) TTL() time.Duration { return c.ttl }

// GetEligibleBanners returns the eligible banners for slotName and scope. It
// never fails: when loading fails the last known list is served even if
// stale or invalidated, and an empty list when nothing was ever loaded.
func (c *Cache) GetEligibleBanners(ctx context.Context, slotName, scope string) []models.Banner {
	k := cacheKey{slot: slotName, scope: strings.TrimSpace(scope)}

	c.mu.RLock()
	entry, ok := c.entries[k]
	c.mu.RUnlock()

	if ok && !entry.isExpired(c.clock.Now(), c.ttl) {
		c.count(func(s *Stats) { s.Hits++ })
		c.metrics.IncrementCacheLookups("hit")
		return copyBanners(entry.banners)
	}
	c.count(func(s *Stats) { s.Misses++ })
	c.metrics.IncrementCacheLookups("miss")

	banners, err := c.load(ctx, k)
	if err == nil {
		return copyBanners(banners)
	}

	// The entry may have been refreshed or evicted while loading.
	c.mu.RLock()
	entry, ok = c.entries[k]
	if !ok {
		entry, ok = c.evicted[k]
	}
	c.mu.RUnlock()
	if ok {
		c.logger.Warn("serving stale banners",
			zap.Error(err),
			zap.String("slot", slotName),
			zap.String("scope", scope),
			zap.Time("fetched_at", entry.fetchedAt))
		c.count(func(s *Stats) { s.Stale++ })
		c.metrics.IncrementCacheLookups("stale")
		return copyBanners(entry.banners)
	}

	if !errors.Is(err, context.Canceled) {
		c.logger.Error("banner load failed, serving empty list",
			zap.Error(err),
			zap.String("slot", slotName),
			zap.String("scope", scope))
	}
	c.count(func(s *Stats) { s.Empty++ })
	c.metrics.IncrementCacheLookups("empty")
	return []models.Banner{}
}

// load runs one shared load per key and slot generation. A caller whose ctx
// ends stops waiting; the shared load is cancelled once no caller waits for it.
func (c *Cache) load(ctx context.Context, k cacheKey) ([]models.Banner, error) {
	c.mu.RLock()
	fk := flightKey{cacheKey: k, gen: c.gens[k.slot]}
	c.mu.RUnlock()

	c.flightMu.Lock()
	f, ok := c.flights[fk]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		c.flights[fk] = f
	}
	f.waiters++
	c.flightMu.Unlock()
	defer c.release(fk, f)

	ch := c.group.DoChan(fk.String(), func() (interface{}, error) {
		lctx, span := observability.StartSpan(f.ctx, "delivery.load",
			attribute.String("slot", k.slot), attribute.String("scope", k.scope))
		banners, err := c.loader.Load(lctx, k.slot, k.scope)
		if err != nil {
			span.RecordError(err)
			span.End()
			return nil, err
		}
		span.SetAttributes(attribute.Int("eligible", len(banners)))
		span.End()
		if banners == nil {
			banners = []models.Banner{}
		}

		c.mu.Lock()
		if c.gens[k.slot] == fk.gen {
			c.entries[k] = &cacheEntry{banners: banners, fetchedAt: c.clock.Now()}
			delete(c.evicted, k)
		}
		c.mu.Unlock()
		return banners, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]models.Banner), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) release(fk flightKey, f *flight) {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if c.flights[fk] == f {
		delete(c.flights, fk)
		c.group.Forget(fk.String())
	}
}

// InvalidateSlot drops every entry of slotName and tells other instances to
// do the same. Dropped lists are only served again if the reload fails. Entries are dropped for all scopes because general banners and
// scope-agnostic slots make one banner visible under many scope keys.
func (c *Cache) InvalidateSlot(ctx context.Context, slotName string) {
	c.evict(slotName)
	c.metrics.IncrementCacheInvalidations("local")
	if c.broadcaster == nil {
		return
	}
	if err := c.broadcaster.PublishInvalidation(ctx, slotName); err != nil {
		c.logger.Warn("failed to publish cache invalidation", zap.Error(err), zap.String("slot", slotName))
	}
}

// EvictRemote drops entries of slotName on behalf of another instance.
func (c *Cache) EvictRemote(slotName string) {
	c.evict(slotName)
	c.metrics.IncrementCacheInvalidations("remote")
}

func (c *Cache) evict(slotName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[slotName]++
	for k, e := range c.entries {
		if k.slot == slotName {
			c.evicted[k] = e
			delete(c.entries, k)
		}
	}
}

// Clear drops every entry. Like InvalidateSlot it keeps the lists as a
// fallback for failed reloads.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		c.gens[k.slot]++
		c.evicted[k] = e
	}
	c.entries = make(map[cacheKey]*cacheEntry)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Entries = len(c.entries)
	now := c.clock.Now()
	for _, e := range c.entries {
		if e.isExpired(now, c.ttl) {
			s.Expired++
		}
	}
	return s
}

func (c *Cache) count(fn func(*Stats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}

func copyBanners(in []models.Banner) []models.Banner {
	out := make([]models.Banner, len(in))
	copy(out, in)
	return out
}
