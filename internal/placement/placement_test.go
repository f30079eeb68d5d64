package placement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalads/internal/catalog"
	"github.com/patrickwarner/portalads/internal/db"
	"github.com/patrickwarner/portalads/internal/models"
	"github.com/patrickwarner/portalads/internal/observability"
	"github.com/patrickwarner/portalads/internal/schedule"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store     *db.MemoryStore
	clock     *schedule.ManualClock
	finder    *Finder
	validator *Validator
	resolver  *Resolver
	writer    *Writer
	metrics   *observability.MockMetricsRegistry
	inval     *recordingInvalidator
}

type recordingInvalidator struct {
	mu    sync.Mutex
	slots []string
}

func (r *recordingInvalidator) InvalidateSlot(_ context.Context, slot string) {
	r.mu.Lock()
	r.slots = append(r.slots, slot)
	r.mu.Unlock()
}

func (r *recordingInvalidator) Slots() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.slots...)
}

func newFixture(t *testing.T, store db.BannerStore) *fixture {
	t.Helper()
	cat, err := catalog.Load("../catalog/testdata/slots.yaml")
	require.NoError(t, err)

	f := &fixture{
		clock:   schedule.NewManualClock(testNow),
		metrics: observability.NewMockMetricsRegistry(),
		inval:   &recordingInvalidator{},
	}
	if ms, ok := store.(*db.MemoryStore); ok {
		f.store = ms
		ms.SetNowFunc(f.clock.Now)
	}
	f.finder = NewFinder(store, cat, f.clock, time.Second)
	f.validator = NewValidator(f.finder, zap.NewNop(), f.metrics)
	f.resolver = NewResolver(f.finder, zap.NewNop(), f.metrics)
	f.writer = NewWriter(f.finder, f.validator, f.inval, zap.NewNop())
	return f
}

func (f *fixture) create(t *testing.T, b models.Banner) models.Banner {
	t.Helper()
	if b.ImageRef == "" {
		b.ImageRef = "img/" + b.Name + ".png"
	}
	require.NoError(t, f.writer.Create(context.Background(), &b, false))
	return b
}

func TestHeaderCapacityScenario(t *testing.T) {
	f := newFixture(t, db.NewMemoryStore())
	ctx := context.Background()

	a := f.create(t, models.Banner{Name: "A", SlotName: "Header", Active: true})

	res := f.validator.Validate(ctx, "Header", "general", 0)
	assert.False(t, res.Valid)
	assert.Equal(t, 1, res.EligibleCount)
	assert.Equal(t, 1, res.Capacity)
	require.Len(t, res.ConflictingBanners, 1)
	assert.Equal(t, a.ID, res.ConflictingBanners[0].ID)
	assert.Equal(t, "A", res.ConflictingBanners[0].Name)

	n, err := f.resolver.DeactivateConflicts(ctx, "Header", "general", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res = f.validator.Validate(ctx, "Header", "general", 0)
	assert.True(t, res.Valid)
	assert.Empty(t, res.ConflictingBanners)

	got, err := f.store.GetBanner(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, 1, f.metrics.Count("validation:conflict"))
	assert.Equal(t, 1, f.metrics.Count("deactivated:Header"))
}

func TestValidateExcludesBannerBeingEdited(t *testing.T) {
	f := newFixture(t, db.NewMemoryStore())
	a := f.create(t, models.Banner{Name: "A", SlotName: "Header", Active: true})

	res := f.validator.Validate(context.Background(), "Header", "general", a.ID)
	assert.True(t, res.Valid)
	assert.Equal(t, 0, res.EligibleCount)
}

func TestScheduledBannerDoesNotCount(t *testing.T) {
	f := newFixture(t, db.NewMemoryStore())
	ctx := context.Background()

	start := testNow.Add(24 * time.Hour)
	f.create(t, models.Banner{Name: "C", SlotName: "Header", Active: true, ScheduleStart: &start})

	res := f.validator.Validate(ctx, "Header", "general", 0)
	assert.True(t, res.Valid)
	assert.Equal(t, 0, res.EligibleCount)

	f.clock.Set(start)
	res = f.validator.Validate(ctx, "Header", "general", 0)
	assert.False(t, res.Valid)
	assert.Equal(t, 1, res.EligibleCount)
}

func TestCapacityMonotonicity(t *testing.T) {
	f := newFixture(t, db.NewMemoryStore())
	ctx := context.Background()

	var prev int
	for i := 0; i < 5; i++ {
		f.create(t, models.Banner{Name: "S", SlotName: "Sidebar", Scope: "news", Active: true})
		res := f.validator.Validate(ctx, "Sidebar", "news", 0)
		assert.GreaterOrEqual(t, res.EligibleCount, prev)
		prev = res.EligibleCount
		assert.Equal(t, res.EligibleCount < 3, res.Valid, "after %d inserts", i+1)
	}
}

func TestUnknownAndUnboundedSlotsFailOpen(t *testing.T) {
	f := newFixture(t, db.NewMemoryStore())
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		f.create(t, models.Banner{Name: "F", SlotName: "Footer", Active: true})
		f.create(t, models.Banner{Name: "X", SlotName: "Nowhere", Active: true})
	}

	for _, slot := range []string{"Footer", "Nowhere"} {
		res := f.validator.Validate(ctx, slot, "general", 0)
		assert.True(t, res.Valid, slot)
		assert.Equal(t, 4, res.EligibleCount, slot)
		assert.Equal(t, 0, res.Capacity, slot)
	}
}

func TestScopeRule(t *testing.T) {
	f := newFixture(t, db.NewMemoryStore())
	ctx := context.Background()
	f.create(t, models.Banner{Name: "general", SlotName: "Sidebar", Active: true})
	f.create(t, models.Banner{Name: "news", SlotName: "Sidebar", Scope: "news", Active: true})
	f.create(t, models.Banner{Name: "events", SlotName: "Sidebar", Scope: "events", Active: true})

	names := func(bs []models.Banner) []string {
		out := make([]string, len(bs))
		for i, b := range bs {
			out[i] = b.Name
		}
		return out
	}

	got, err := f.finder.Eligible(ctx, "Sidebar", "news", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"general", "news"}, names(got))

	got, err = f.finder.Eligible(ctx, "Sidebar", "general", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"general"}, names(got))

	got, err = f.finder.Eligible(ctx, "Sidebar", "", 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestEligibleOrdering(t *testing.T) {
	f := newFixture(t, db.NewMemoryStore())
	f.create(t, models.Banner{Name: "late", SlotName: "Footer", DisplayOrder: 2, Active: true})
	f.create(t, models.Banner{Name: "old", SlotName: "Footer", DisplayOrder: 1, Active: true})
	f.clock.Advance(time.Minute)
	f.create(t, models.Banner{Name: "new", SlotName: "Footer", DisplayOrder: 1, Active: true})

	got, err := f.finder.Eligible(context.Background(), "Footer", "general", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "new", got[0].Name)
	assert.Equal(t, "old", got[1].Name)
	assert.Equal(t, "late", got[2].Name)
}

func TestDeactivateConflictsIdempotent(t *testing.T) {
	f := newFixture(t, db.NewMemoryStore())
	ctx := context.Background()
	keep := f.create(t, models.Banner{Name: "keep", SlotName: "Sidebar", Scope: "news", Active: true})
	f.create(t, models.Banner{Name: "drop1", SlotName: "Sidebar", Scope: "news", Active: true})
	f.create(t, models.Banner{Name: "drop2", SlotName: "Sidebar", Active: true})

	n, err := f.resolver.DeactivateConflicts(ctx, "Sidebar", "news", keep.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.resolver.DeactivateConflicts(ctx, "Sidebar", "news", keep.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := f.store.GetBanner(ctx, keep.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)

	all, err := f.store.ListBanners(ctx, db.BannerFilter{SlotName: "Sidebar"})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

type failingStore struct {
	*db.MemoryStore
}

var errUnavailable = errors.New("database unavailable")

func (failingStore) ListBanners(context.Context, db.BannerFilter) ([]models.Banner, error) {
	return nil, errUnavailable
}

func TestValidateFailureIsNeverValid(t *testing.T) {
	f := newFixture(t, failingStore{db.NewMemoryStore()})

	res := f.validator.Validate(context.Background(), "Footer", "general", 0)
	assert.False(t, res.Valid)
	assert.Equal(t, GenericValidationFailure, res.Message)
	assert.NotNil(t, res.ConflictingBanners)
	assert.Equal(t, 1, f.metrics.Count("validation:error"))

	_, err := f.resolver.DeactivateConflicts(context.Background(), "Footer", "general", 0)
	assert.ErrorIs(t, err, errUnavailable)
}

func TestWriterIntegrity(t *testing.T) {
	f := newFixture(t, db.NewMemoryStore())
	ctx := context.Background()

	start := testNow
	end := testNow.Add(-time.Hour)
	err := f.writer.Create(ctx, &models.Banner{Name: "bad", SlotName: "Footer", ImageRef: "x", ScheduleStart: &start, ScheduleEnd: &end}, false)
	assert.ErrorIs(t, err, models.ErrInvalidSchedule)

	err = f.writer.Create(ctx, &models.Banner{Name: "bad", SlotName: "Sidebar", Scope: "classifieds", ImageRef: "x"}, false)
	assert.ErrorIs(t, err, models.ErrScopeNotAllowed)

	err = f.writer.Create(ctx, &models.Banner{SlotName: "Footer", ImageRef: "x"}, false)
	assert.ErrorIs(t, err, models.ErrMissingField)

	assert.Empty(t, f.inval.Slots())
}

func TestWriterInvalidatesAffectedSlots(t *testing.T) {
	f := newFixture(t, db.NewMemoryStore())
	ctx := context.Background()

	b := f.create(t, models.Banner{Name: "mover", SlotName: "Footer", Active: true})
	b.SlotName = "Header"
	require.NoError(t, f.writer.Update(ctx, &b))
	require.NoError(t, f.writer.SetActive(ctx, b.ID, false))
	require.NoError(t, f.writer.Delete(ctx, b.ID))

	assert.Equal(t, []string{"Footer", "Header", "Footer", "Header", "Header"}, f.inval.Slots())
	assert.ErrorIs(t, f.writer.Delete(ctx, b.ID), models.ErrNotFound)
}

func TestStrictCreateRejectsOverCapacity(t *testing.T) {
	f := newFixture(t, db.NewMemoryStore())
	ctx := context.Background()
	f.create(t, models.Banner{Name: "A", SlotName: "Header", Active: true})

	b := models.Banner{Name: "B", SlotName: "Header", ImageRef: "b.png", Active: true}
	err := f.writer.Create(ctx, &b, true)
	require.ErrorIs(t, err, ErrCapacityConflict)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.False(t, conflict.Result.Valid)
	assert.Len(t, conflict.Result.ConflictingBanners, 1)

	// Inactive banners skip the capacity check.
	b.Active = false
	require.NoError(t, f.writer.Create(ctx, &b, true))
}

func TestStrictCreateSerializesConcurrentWriters(t *testing.T) {
	f := newFixture(t, db.NewMemoryStore())
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := models.Banner{Name: "race", SlotName: "Sidebar", Scope: "news", ImageRef: "r.png", Active: true}
			if err := f.writer.Create(ctx, &b, true); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, created)
	got, err := f.finder.Eligible(ctx, "Sidebar", "news", 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestStrictCreateGeneralBannerChecksEveryScope(t *testing.T) {
	cat, err := catalog.New([]models.Slot{{Name: "Side", AllowedScopes: []string{"news", "events"}, Capacity: 1}})
	require.NoError(t, err)
	store := db.NewMemoryStore()
	clock := schedule.NewManualClock(testNow)
	store.SetNowFunc(clock.Now)
	finder := NewFinder(store, cat, clock, time.Second)
	w := NewWriter(finder, NewValidator(finder, zap.NewNop(), observability.NewMockMetricsRegistry()), nil, zap.NewNop())
	ctx := context.Background()

	news := models.Banner{Name: "A", SlotName: "Side", Scope: "news", ImageRef: "a.png", Active: true}
	require.NoError(t, w.Create(ctx, &news, true))

	general := models.Banner{Name: "B", SlotName: "Side", ImageRef: "b.png", Active: true}
	err = w.Create(ctx, &general, true)
	require.ErrorIs(t, err, ErrCapacityConflict)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "A", conflict.Result.ConflictingBanners[0].Name)

	got, err := finder.Eligible(ctx, "Side", "news", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// A scoped banner on another page still fits.
	events := models.Banner{Name: "C", SlotName: "Side", Scope: "events", ImageRef: "c.png", Active: true}
	require.NoError(t, w.Create(ctx, &events, true))
}

func TestStrictCreateSerializesAcrossScopes(t *testing.T) {
	f := newFixture(t, db.NewMemoryStore())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			scope := "news"
			if i%2 == 0 {
				scope = models.DefaultScope
			}
			b := models.Banner{Name: "race", SlotName: "Sidebar", Scope: scope, ImageRef: "r.png", Active: true}
			_ = f.writer.Create(ctx, &b, true)
		}(i)
	}
	wg.Wait()

	for _, scope := range []string{"news", "events", models.DefaultScope} {
		got, err := f.finder.Eligible(ctx, "Sidebar", scope, 0)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(got), 3, scope)
	}
}

func TestScheduleStatus(t *testing.T) {
	f := newFixture(t, db.NewMemoryStore())
	ctx := context.Background()

	past := testNow.Add(-time.Hour)
	future := testNow.Add(time.Hour)
	f.create(t, models.Banner{Name: "A", SlotName: "Header", Active: true})
	f.create(t, models.Banner{Name: "B", SlotName: "Header", Active: true})
	f.create(t, models.Banner{Name: "C", SlotName: "Header", Active: true, ScheduleStart: &future})
	f.create(t, models.Banner{Name: "D", SlotName: "Header", Active: true, ScheduleEnd: &past})
	f.create(t, models.Banner{Name: "E", SlotName: "Header"})

	report, err := f.finder.ScheduleStatus(ctx, "Header")
	require.NoError(t, err)
	require.Len(t, report.Banners, 5)

	statuses := map[string]schedule.Status{}
	for _, b := range report.Banners {
		statuses[b.Name] = b.Status
	}
	assert.Equal(t, schedule.StatusActive, statuses["A"])
	assert.Equal(t, schedule.StatusScheduled, statuses["C"])
	assert.Equal(t, schedule.StatusExpired, statuses["D"])
	assert.Equal(t, schedule.StatusInactive, statuses["E"])

	require.Len(t, report.Usage, 1)
	assert.Equal(t, SlotUsage{SlotName: "Header", Scope: "general", Eligible: 2, Capacity: 1, OverCapacity: true}, report.Usage[0])
}
