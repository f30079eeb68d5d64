package models

import "errors"

// ErrNotFound is returned when a banner is not found in the store
var ErrNotFound = errors.New("entity not found")

var (
	// ErrInvalidSchedule is returned when a schedule end does not follow its start.
	ErrInvalidSchedule = errors.New("schedule end must be after schedule start")
	// ErrScopeNotAllowed is returned when a banner scope is not offered by its slot.
	ErrScopeNotAllowed = errors.New("scope not allowed for slot")
	// ErrMissingField is returned when a required banner field is empty.
	ErrMissingField = errors.New("missing required field")
)
