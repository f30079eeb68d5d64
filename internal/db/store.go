package db

import (
	"context"

	"github.com/patrickwarner/portalads/internal/models"
)

// BannerFilter narrows ListBanners. Zero values match everything.
type BannerFilter struct {
	SlotName   string
	ActiveOnly bool
}

// BannerStore is the persistence boundary for banners. Implementations must be
// safe for concurrent use and must return copies the caller may modify.
type BannerStore interface {
	ListBanners(ctx context.Context, f BannerFilter) ([]models.Banner, error)
	GetBanner(ctx context.Context, id int) (models.Banner, error)
	InsertBanner(ctx context.Context, b *models.Banner) error
	UpdateBanner(ctx context.Context, b *models.Banner) error
	DeleteBanner(ctx context.Context, id int) error
	SetBannerActive(ctx context.Context, id int, active bool) error
	// DeactivateBanners sets active=false on the given banners that are still
	// active and returns how many rows changed.
	DeactivateBanners(ctx context.Context, ids []int) (int, error)
	// WithSlotLock runs fn while holding an exclusive lock for the slot.
	WithSlotLock(ctx context.Context, slotName string, fn func(ctx context.Context) error) error
}
