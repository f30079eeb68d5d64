package models

import "time"

// Engagement event types accepted by the tracker and the sink.
const (
	EventImpression = "impression"
	EventClick      = "click"
)

// EngagementEvent is a single impression or click reported for a banner.
type EngagementEvent struct {
	ID         string    `json:"id"`
	BannerID   int       `json:"bannerId"`
	EventType  string    `json:"eventType"`
	Scope      string    `json:"scope,omitempty"`
	SlotName   string    `json:"slotName,omitempty"`
	SessionID  string    `json:"sessionId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`

	// Enrichment added by the sink.
	DeviceType string `json:"deviceType,omitempty"`
	Country    string `json:"country,omitempty"`
	IsBot      bool   `json:"-"`
}

// ValidEventType reports whether t is a known engagement event type.
func ValidEventType(t string) bool {
	return t == EventImpression || t == EventClick
}
