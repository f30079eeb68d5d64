package models

// ValidationResult is the outcome of a capacity check for a slot and scope.
// It is produced per call and never persisted.
type ValidationResult struct {
	Valid         bool `json:"valid"`
	EligibleCount int  `json:"eligible_count"`
	// Capacity is zero when the slot is unbounded.
	Capacity           int                 `json:"capacity"`
	ConflictingBanners []ConflictingBanner `json:"conflicting_banners"`
	Message            string              `json:"message"`
}

// ValidationRequest identifies the slot, scope and optional banner to exclude.
type ValidationRequest struct {
	SlotName        string `json:"slotName"`
	Scope           string `json:"scope"`
	ExcludeBannerID *int   `json:"excludeBannerId,omitempty"`
}
