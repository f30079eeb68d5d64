package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/portalads/internal/models"
)

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return fixed })

	b := &models.Banner{Name: "A", SlotName: "Header", ImageRef: "a.png", Active: true}
	require.NoError(t, store.InsertBanner(ctx, b))
	assert.Equal(t, 1, b.ID)
	assert.Equal(t, models.DefaultScope, b.Scope)
	assert.Equal(t, fixed, b.CreatedAt)

	got, err := store.GetBanner(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Name)

	got.Name = "A2"
	require.NoError(t, store.UpdateBanner(ctx, &got))
	again, _ := store.GetBanner(ctx, b.ID)
	assert.Equal(t, "A2", again.Name)
	assert.Equal(t, fixed, again.CreatedAt)

	require.NoError(t, store.SetBannerActive(ctx, b.ID, false))
	inactive, err := store.ListBanners(ctx, BannerFilter{SlotName: "Header", ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, inactive)

	require.NoError(t, store.DeleteBanner(ctx, b.ID))
	_, err = store.GetBanner(ctx, b.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, store.DeleteBanner(ctx, b.ID), models.ErrNotFound)
	assert.ErrorIs(t, store.UpdateBanner(ctx, &models.Banner{ID: 99}), models.ErrNotFound)
}

func TestMemoryStoreDeactivateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ids := make([]int, 0, 3)
	for _, name := range []string{"A", "B", "C"} {
		b := &models.Banner{Name: name, SlotName: "Header", ImageRef: name + ".png", Active: true}
		require.NoError(t, store.InsertBanner(ctx, b))
		ids = append(ids, b.ID)
	}

	n, err := store.DeactivateBanners(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = store.DeactivateBanners(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	b := &models.Banner{Name: "A", SlotName: "Header", ImageRef: "a.png", ScheduleStart: &start}
	require.NoError(t, store.InsertBanner(ctx, b))

	list, err := store.ListBanners(ctx, BannerFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	*list[0].ScheduleStart = start.Add(time.Hour)

	got, _ := store.GetBanner(ctx, b.ID)
	assert.Equal(t, start, *got.ScheduleStart)
}

func TestMemoryStoreHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryStore().ListBanners(ctx, BannerFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSlotLockIsSlotWide(t *testing.T) {
	assert.Equal(t, "portalads:slot:Sidebar", slotLockKey("Sidebar"))
	assert.NotEqual(t, slotLockKey("Sidebar"), slotLockKey("Header"))

	store := NewMemoryStore()
	err := store.WithSlotLock(context.Background(), "Sidebar", func(ctx context.Context) error {
		return models.ErrNotFound
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}
