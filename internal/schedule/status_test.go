package schedule

import (
	"testing"
	"time"

	"github.com/patrickwarner/portalads/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	testCases := []struct {
		name   string
		active bool
		start  *time.Time
		end    *time.Time
		want   Status
	}{
		{"inactive without schedule", false, nil, nil, StatusInactive},
		{"inactive dominates active window", false, &past, &future, StatusInactive},
		{"active without schedule", true, nil, nil, StatusActive},
		{"active inside window", true, &past, &future, StatusActive},
		{"start equals now", true, &now, nil, StatusActive},
		{"end equals now", true, nil, &now, StatusActive},
		{"future start", true, &future, nil, StatusScheduled},
		{"past end", true, nil, &past, StatusExpired},
		// Misconfigured windows are rejected at write time; a future start still dominates.
		{"future start and past end", true, &future, &past, StatusScheduled},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Evaluate(tc.active, tc.start, tc.end, now))
		})
	}
}

func TestEvaluateIsPure(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	start := now.Add(-time.Minute)
	end := now.Add(time.Minute)
	first := Evaluate(true, &start, &end, now)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Evaluate(true, &start, &end, now))
	}
}

func TestScheduledBannerBecomesEligible(t *testing.T) {
	clock := NewManualClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	start := clock.Now().Add(time.Hour)
	c := models.Banner{ID: 3, Name: "C", Active: true, ScheduleStart: &start}

	assert.Equal(t, StatusScheduled, StatusOf(c, clock.Now()))
	assert.False(t, Eligible(c, clock.Now()))

	clock.Advance(time.Hour)
	assert.Equal(t, StatusActive, StatusOf(c, clock.Now()))
	assert.True(t, Eligible(c, clock.Now()))
}

func TestMatchesScope(t *testing.T) {
	scoped := &models.Slot{Name: "Header", AllowedScopes: []string{"news"}}
	agnostic := &models.Slot{Name: "Footer", AllowedScopes: []string{models.AllScopes}}

	assert.True(t, MatchesScope("general", "news", scoped))
	assert.True(t, MatchesScope("", "news", scoped))
	assert.True(t, MatchesScope("news", "news", scoped))
	assert.False(t, MatchesScope("events", "news", scoped))
	assert.True(t, MatchesScope("events", "news", agnostic))
	assert.False(t, MatchesScope("events", "news", nil))
	assert.True(t, MatchesScope("events", "", scoped))
}
