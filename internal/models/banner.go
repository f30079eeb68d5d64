package models

import (
	"fmt"
	"strings"
	"time"
)

// DefaultScope is the scope a banner falls back to when none is given.
// A banner in the general scope is eligible on every page.
const DefaultScope = "general"

// Banner is a single image placement inside a named slot.
type Banner struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	// SlotName references a Slot from the catalog. Banners may reference
	// slots the catalog does not know about.
	SlotName string `json:"slot_name"`
	// Scope restricts the banner to a page or section. Empty means DefaultScope.
	Scope      string `json:"scope"`
	ImageRef   string `json:"image_ref"`
	TargetLink string `json:"target_link,omitempty"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	// DisplayOrder breaks ties during rotation; lower values show first.
	DisplayOrder            int        `json:"display_order"`
	RotationIntervalSeconds int        `json:"rotation_interval_seconds"`
	Active                  bool       `json:"active"`
	ScheduleStart           *time.Time `json:"schedule_start,omitempty"`
	ScheduleEnd             *time.Time `json:"schedule_end,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

// NormalizedScope returns the banner scope with DefaultScope applied.
func (b Banner) NormalizedScope() string {
	return NormalizeScope(b.Scope)
}

// NormalizeScope trims s and maps the empty string to DefaultScope.
func NormalizeScope(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultScope
	}
	return s
}

// ConflictingBanner is the short form of a banner reported by validation.
type ConflictingBanner struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Scope string `json:"scope"`
}

// Validate checks write-time integrity of a banner. Schedule ordering is
// enforced here rather than at read time.
func (b Banner) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("name: %w", ErrMissingField)
	}
	if strings.TrimSpace(b.SlotName) == "" {
		return fmt.Errorf("slot_name: %w", ErrMissingField)
	}
	if strings.TrimSpace(b.ImageRef) == "" {
		return fmt.Errorf("image_ref: %w", ErrMissingField)
	}
	if b.ScheduleStart != nil && b.ScheduleEnd != nil && !b.ScheduleEnd.After(*b.ScheduleStart) {
		return ErrInvalidSchedule
	}
	return nil
}
