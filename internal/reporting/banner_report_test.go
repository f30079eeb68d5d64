package reporting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/portalads/internal/analytics"
	"github.com/patrickwarner/portalads/internal/models"
)

func TestSummarize(t *testing.T) {
	since := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	banners := []models.Banner{
		{ID: 1, Name: "Spring", SlotName: "Header"},
		{ID: 2, Name: "Events", SlotName: "Sidebar"},
		{ID: 3, Name: "News", SlotName: "Sidebar"},
	}
	counts := []analytics.EventCount{
		{BannerID: 1, EventType: models.EventImpression, Count: 200},
		{BannerID: 1, EventType: models.EventClick, Count: 2},
		{BannerID: 2, EventType: models.EventImpression, Count: 100},
		{BannerID: 2, EventType: models.EventClick, Count: 5},
		{BannerID: 3, EventType: models.EventImpression, Count: 50},
		{BannerID: 9, EventType: models.EventImpression, Count: 10},
	}

	s := Summarize(since, counts, banners)

	assert.Equal(t, since, s.Since)
	assert.Equal(t, int64(360), s.Total.Impressions)
	assert.Equal(t, int64(7), s.Total.Clicks)
	assert.InDelta(t, 7.0/360*100, s.Total.CTR, 1e-9)

	require.Len(t, s.Banners, 4)
	assert.Equal(t, 2, s.Banners[0].BannerID, "highest CTR first")
	assert.InDelta(t, 5.0, s.Banners[0].CTR, 1e-9)
	assert.Equal(t, 1, s.Banners[1].BannerID)
	assert.Equal(t, "Spring", s.Banners[1].Name)
	assert.Equal(t, 3, s.Banners[2].BannerID, "zero CTR ranked by impressions")
	assert.Equal(t, 9, s.Banners[3].BannerID)
	assert.Empty(t, s.Banners[3].SlotName)

	require.Len(t, s.Slots, 3)
	assert.Equal(t, "", s.Slots[0].SlotName)
	assert.Equal(t, "Header", s.Slots[1].SlotName)
	sidebar := s.Slots[2]
	assert.Equal(t, "Sidebar", sidebar.SlotName)
	assert.Equal(t, 2, sidebar.Banners)
	assert.Equal(t, int64(150), sidebar.Impressions)
	assert.Equal(t, int64(5), sidebar.Clicks)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(time.Time{}, nil, nil)
	assert.Empty(t, s.Banners)
	assert.NotNil(t, s.Slots)
	assert.Zero(t, s.Total.CTR)
}
