package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/patrickwarner/portalads/internal/models"
)

var _ BannerStore = (*MemoryStore)(nil)

// MemoryStore keeps banners in process memory. It backs tests and local
// development when no Postgres DSN is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	banners map[int]models.Banner
	nextID  int
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{banners: make(map[int]models.Banner), nextID: 1, now: time.Now}
}

// SetNowFunc overrides the timestamp source used for created_at/updated_at.
func (m *MemoryStore) SetNowFunc(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// ListBanners returns matching banners ordered by ID.
func (m *MemoryStore) ListBanners(ctx context.Context, f BannerFilter) ([]models.Banner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Banner, 0, len(m.banners))
	for _, b := range m.banners {
		if f.SlotName != "" && b.SlotName != f.SlotName {
			continue
		}
		if f.ActiveOnly && !b.Active {
			continue
		}
		out = append(out, cloneBanner(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetBanner returns the banner with the given ID.
func (m *MemoryStore) GetBanner(ctx context.Context, id int) (models.Banner, error) {
	if err := ctx.Err(); err != nil {
		return models.Banner{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.banners[id]
	if !ok {
		return models.Banner{}, models.ErrNotFound
	}
	return cloneBanner(b), nil
}

// InsertBanner assigns an ID and timestamps, then stores the banner.
func (m *MemoryStore) InsertBanner(ctx context.Context, b *models.Banner) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	b.ID = m.nextID
	m.nextID++
	b.Scope = b.NormalizedScope()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	m.banners[b.ID] = cloneBanner(*b)
	return nil
}

// UpdateBanner replaces a stored banner, keeping its creation time.
func (m *MemoryStore) UpdateBanner(ctx context.Context, b *models.Banner) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.banners[b.ID]
	if !ok {
		return models.ErrNotFound
	}
	b.Scope = b.NormalizedScope()
	b.CreatedAt = prev.CreatedAt
	b.UpdatedAt = m.now()
	m.banners[b.ID] = cloneBanner(*b)
	return nil
}

// DeleteBanner removes a banner by ID.
func (m *MemoryStore) DeleteBanner(ctx context.Context, id int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.banners[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.banners, id)
	return nil
}

// SetBannerActive toggles the active flag of a banner.
func (m *MemoryStore) SetBannerActive(ctx context.Context, id int, active bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.banners[id]
	if !ok {
		return models.ErrNotFound
	}
	if b.Active != active {
		b.Active = active
		b.UpdatedAt = m.now()
		m.banners[id] = b
	}
	return nil
}

// DeactivateBanners turns off the listed banners that are still active.
func (m *MemoryStore) DeactivateBanners(ctx context.Context, ids []int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	changed := 0
	for _, id := range ids {
		b, ok := m.banners[id]
		if !ok || !b.Active {
			continue
		}
		b.Active = false
		b.UpdatedAt = now
		m.banners[id] = b
		changed++
	}
	return changed, nil
}

// WithSlotLock runs fn directly; in-process callers serialize themselves.
func (m *MemoryStore) WithSlotLock(ctx context.Context, slotName string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func cloneBanner(b models.Banner) models.Banner {
	if b.ScheduleStart != nil {
		t := *b.ScheduleStart
		b.ScheduleStart = &t
	}
	if b.ScheduleEnd != nil {
		t := *b.ScheduleEnd
		b.ScheduleEnd = &t
	}
	return b
}
