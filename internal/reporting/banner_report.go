// Package reporting turns aggregated engagement counts into per-banner and
// per-slot performance summaries.
package reporting

import (
	"sort"
	"time"

	"github.com/patrickwarner/portalads/internal/analytics"
	"github.com/patrickwarner/portalads/internal/models"
)

// Metrics is an impression and click total. CTR is a percentage (0-100).
type Metrics struct {
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	CTR         float64 `json:"ctr"`
}

func (m *Metrics) add(eventType string, n uint64) {
	switch eventType {
	case models.EventImpression:
		m.Impressions += int64(n)
	case models.EventClick:
		m.Clicks += int64(n)
	}
}

func (m *Metrics) finish() {
	if m.Impressions > 0 {
		m.CTR = float64(m.Clicks) / float64(m.Impressions) * 100
	}
}

// BannerMetrics is the engagement of one banner.
type BannerMetrics struct {
	BannerID int    `json:"banner_id"`
	Name     string `json:"name,omitempty"`
	SlotName string `json:"slot_name,omitempty"`
	Metrics
}

// SlotMetrics is the engagement of every banner in one slot.
type SlotMetrics struct {
	SlotName string `json:"slot_name"`
	Banners  int    `json:"banners"`
	Metrics
}

// Summary is a banner performance report.
type Summary struct {
	Since   time.Time       `json:"since"`
	Total   Metrics         `json:"total"`
	Banners []BannerMetrics `json:"banners"`
	Slots   []SlotMetrics   `json:"slots"`
}

// Summarize folds counts into a Summary. banners supplies names and slots;
// counts for banners it does not know are reported under an empty slot name.
// Banners are ranked by CTR, then impressions.
func Summarize(since time.Time, counts []analytics.EventCount, banners []models.Banner) Summary {
	known := make(map[int]models.Banner, len(banners))
	for _, b := range banners {
		known[b.ID] = b
	}

	byBanner := make(map[int]*BannerMetrics)
	for _, c := range counts {
		bm, ok := byBanner[c.BannerID]
		if !ok {
			bm = &BannerMetrics{BannerID: c.BannerID}
			if b, ok := known[c.BannerID]; ok {
				bm.Name = b.Name
				bm.SlotName = b.SlotName
			}
			byBanner[c.BannerID] = bm
		}
		bm.add(c.EventType, c.Count)
	}

	s := Summary{Since: since, Banners: make([]BannerMetrics, 0, len(byBanner)), Slots: []SlotMetrics{}}
	bySlot := make(map[string]*SlotMetrics)
	for _, bm := range byBanner {
		bm.finish()
		s.Banners = append(s.Banners, *bm)

		s.Total.Impressions += bm.Impressions
		s.Total.Clicks += bm.Clicks

		sm, ok := bySlot[bm.SlotName]
		if !ok {
			sm = &SlotMetrics{SlotName: bm.SlotName}
			bySlot[bm.SlotName] = sm
		}
		sm.Banners++
		sm.Impressions += bm.Impressions
		sm.Clicks += bm.Clicks
	}
	s.Total.finish()

	sort.Slice(s.Banners, func(i, j int) bool {
		a, b := s.Banners[i], s.Banners[j]
		if a.CTR != b.CTR {
			return a.CTR > b.CTR
		}
		if a.Impressions != b.Impressions {
			return a.Impressions > b.Impressions
		}
		return a.BannerID < b.BannerID
	})

	for _, sm := range bySlot {
		sm.finish()
		s.Slots = append(s.Slots, *sm)
	}
	sort.Slice(s.Slots, func(i, j int) bool { return s.Slots[i].SlotName < s.Slots[j].SlotName })
	return s
}
