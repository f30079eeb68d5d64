package schedule

import (
	"time"

	"github.com/patrickwarner/portalads/internal/models"
)

// Status is the derived eligibility state of a banner.
type Status string

const (
	StatusActive    Status = "active"
	StatusScheduled Status = "scheduled"
	StatusExpired   Status = "expired"
	StatusInactive  Status = "inactive"
)

// Evaluate computes the status from the activation flag and schedule window.
// Precedence: inactive, then scheduled, then expired, else active.
func Evaluate(active bool, start, end *time.Time, now time.Time) Status {
	if !active {
		return StatusInactive
	}
	if start != nil && now.Before(*start) {
		return StatusScheduled
	}
	if end != nil && now.After(*end) {
		return StatusExpired
	}
	return StatusActive
}

// StatusOf evaluates a banner at now.
func StatusOf(b models.Banner, now time.Time) Status {
	return Evaluate(b.Active, b.ScheduleStart, b.ScheduleEnd, now)
}

// Eligible reports whether the banner may be delivered at now. Only eligible
// banners count against slot capacity.
func Eligible(b models.Banner, now time.Time) bool {
	return StatusOf(b, now) == StatusActive
}

// MatchesScope applies the scope rule for a request against a slot.
// A general banner matches every page, a scoped banner matches its own page,
// and any banner matches when the slot is scope-agnostic. An empty requested
// scope applies no filter.
func MatchesScope(bannerScope, requestScope string, slot *models.Slot) bool {
	if requestScope == "" {
		return true
	}
	bannerScope = models.NormalizeScope(bannerScope)
	if bannerScope == models.DefaultScope || bannerScope == requestScope {
		return true
	}
	return slot != nil && slot.ScopeAgnostic()
}
