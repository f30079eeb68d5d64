package models

// AllScopes marks a slot as scope-agnostic when it appears in AllowedScopes.
const AllScopes = "all"

// Slot is a named display location for banners on the portal.
// Slots are static configuration; the engine never mutates them.
type Slot struct {
	// Name is the unique key banners use to reference the slot (e.g. "Header").
	Name              string `json:"name" yaml:"name"`
	RecommendedWidth  int    `json:"recommended_width" yaml:"recommended_width"`
	RecommendedHeight int    `json:"recommended_height" yaml:"recommended_height"`
	// AllowedScopes lists the pages this slot appears on. A single "all"
	// entry, or an empty list, makes the slot scope-agnostic.
	AllowedScopes []string `json:"allowed_scopes" yaml:"allowed_scopes"`
	// Capacity is the maximum number of simultaneously eligible banners.
	// Zero means unbounded.
	Capacity int `json:"capacity" yaml:"capacity"`
}

// ScopeAgnostic reports whether the slot accepts banners of any scope.
func (s Slot) ScopeAgnostic() bool {
	if len(s.AllowedScopes) == 0 {
		return true
	}
	for _, sc := range s.AllowedScopes {
		if sc == AllScopes {
			return true
		}
	}
	return false
}

// AllowsScope reports whether a banner with the given scope may be placed in the slot.
// The general scope is always allowed.
func (s Slot) AllowsScope(scope string) bool {
	scope = NormalizeScope(scope)
	if scope == DefaultScope || s.ScopeAgnostic() {
		return true
	}
	for _, sc := range s.AllowedScopes {
		if sc == scope {
			return true
		}
	}
	return false
}

// Unbounded reports whether the slot has no capacity limit.
func (s Slot) Unbounded() bool {
	return s.Capacity <= 0
}
