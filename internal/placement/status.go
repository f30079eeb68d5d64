package placement

import (
	"context"
	"sort"
	"time"

	"github.com/patrickwarner/portalads/internal/db"
	"github.com/patrickwarner/portalads/internal/models"
	"github.com/patrickwarner/portalads/internal/schedule"
)

// BannerStatus pairs a banner with its derived status.
type BannerStatus struct {
	models.Banner
	Status schedule.Status `json:"status"`
}

// NewBannerStatus evaluates b at now.
func NewBannerStatus(b models.Banner, now time.Time) BannerStatus {
	return BannerStatus{Banner: b, Status: schedule.StatusOf(b, now)}
}

// SlotUsage reports eligible banners against capacity for a slot and scope.
type SlotUsage struct {
	SlotName     string `json:"slot_name"`
	Scope        string `json:"scope"`
	Eligible     int    `json:"eligible"`
	Capacity     int    `json:"capacity"`
	OverCapacity bool   `json:"over_capacity"`
}

// StatusReport is the schedule-status list shown to editors.
type StatusReport struct {
	Banners []BannerStatus `json:"banners"`
	Usage   []SlotUsage    `json:"usage"`
}

// ScheduleStatus lists banners with their derived status and flags any slot
// and scope that currently holds more eligible banners than it allows. An
// empty slotName reports on every slot.
func (f *Finder) ScheduleStatus(ctx context.Context, slotName string) (StatusReport, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	banners, err := f.store.ListBanners(ctx, db.BannerFilter{SlotName: slotName})
	if err != nil {
		return StatusReport{}, err
	}

	now := f.clock.Now()
	report := StatusReport{Banners: make([]BannerStatus, 0, len(banners)), Usage: []SlotUsage{}}

	bySlot := make(map[string][]models.Banner)
	for _, b := range banners {
		report.Banners = append(report.Banners, NewBannerStatus(b, now))
		bySlot[b.SlotName] = append(bySlot[b.SlotName], b)
	}

	slots := make([]string, 0, len(bySlot))
	for name := range bySlot {
		slots = append(slots, name)
	}
	sort.Strings(slots)

	for _, name := range slots {
		scopes := map[string]struct{}{models.DefaultScope: {}}
		for _, b := range bySlot[name] {
			scopes[b.NormalizedScope()] = struct{}{}
		}
		ordered := make([]string, 0, len(scopes))
		for sc := range scopes {
			ordered = append(ordered, sc)
		}
		sort.Strings(ordered)

		capacity := f.catalog.Capacity(name)
		for _, sc := range ordered {
			eligible := len(f.filter(bySlot[name], name, sc, 0, now))
			report.Usage = append(report.Usage, SlotUsage{
				SlotName:     name,
				Scope:        sc,
				Eligible:     eligible,
				Capacity:     capacity,
				OverCapacity: capacity > 0 && eligible > capacity,
			})
		}
	}
	return report, nil
}
