// Package placement decides which banners may occupy a slot and enforces
// slot capacity for editors.
package placement

import (
	"context"
	"sort"
	"time"

	"github.com/patrickwarner/portalads/internal/catalog"
	"github.com/patrickwarner/portalads/internal/db"
	"github.com/patrickwarner/portalads/internal/models"
	"github.com/patrickwarner/portalads/internal/schedule"
)

// DefaultDataAccessTimeout bounds every store call made on behalf of
// validation, resolution and delivery.
const DefaultDataAccessTimeout = 8 * time.Second

// Finder computes the delivery-eligible set for a slot and scope.
type Finder struct {
	store   db.BannerStore
	catalog *catalog.Catalog
	clock   schedule.Clock
	timeout time.Duration
}

// NewFinder creates a Finder. A zero timeout uses DefaultDataAccessTimeout and
// a nil clock uses the system clock.
func NewFinder(store db.BannerStore, cat *catalog.Catalog, clock schedule.Clock, timeout time.Duration) *Finder {
	if timeout <= 0 {
		timeout = DefaultDataAccessTimeout
	}
	if clock == nil {
		clock = schedule.SystemClock{}
	}
	return &Finder{store: store, catalog: cat, clock: clock, timeout: timeout}
}

// Clock returns the clock the finder evaluates schedules against.
func (f *Finder) Clock() schedule.Clock { return f.clock }

// Catalog returns the slot catalog.
func (f *Finder) Catalog() *catalog.Catalog { return f.catalog }

// Eligible returns banners of slotName that are active now and match scope,
// skipping excludeID when it is non-zero. The result is in rotation order.
func (f *Finder) Eligible(ctx context.Context, slotName, scope string, excludeID int) ([]models.Banner, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	banners, err := f.store.ListBanners(ctx, db.BannerFilter{SlotName: slotName, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	return f.filter(banners, slotName, scope, excludeID, f.clock.Now()), nil
}

// Load implements delivery.Loader.
func (f *Finder) Load(ctx context.Context, slotName, scope string) ([]models.Banner, error) {
	return f.Eligible(ctx, slotName, scope, 0)
}

func (f *Finder) filter(banners []models.Banner, slotName, scope string, excludeID int, now time.Time) []models.Banner {
	slot := f.catalog.Lookup(slotName)
	out := make([]models.Banner, 0, len(banners))
	for _, b := range banners {
		if excludeID != 0 && b.ID == excludeID {
			continue
		}
		if !schedule.Eligible(b, now) {
			continue
		}
		if !schedule.MatchesScope(b.Scope, scope, slot) {
			continue
		}
		out = append(out, b)
	}
	SortForRotation(out)
	return out
}

// SortForRotation orders banners by display order ascending, newest first on ties.
func SortForRotation(banners []models.Banner) {
	sort.SliceStable(banners, func(i, j int) bool {
		if banners[i].DisplayOrder != banners[j].DisplayOrder {
			return banners[i].DisplayOrder < banners[j].DisplayOrder
		}
		return banners[i].CreatedAt.After(banners[j].CreatedAt)
	})
}
