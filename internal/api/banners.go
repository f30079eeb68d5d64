package api

import (
	"net/http"

	"github.com/patrickwarner/portalads/internal/models"
)

type bannersResponse struct {
	Banners []models.Banner `json:"banners"`
}

// BannersHandler serves GET /banners?slot=&scope= with the eligible banners of
// a slot in rotation order. Only eligible banners are ever served, so the
// active parameter is accepted but has no further effect. Failures yield an
// empty list rather than an error.
func (s *Server) BannersHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	slot := q.Get("slot")
	if slot == "" {
		http.Error(w, "slot required", http.StatusBadRequest)
		return
	}
	banners := s.Cache.GetEligibleBanners(r.Context(), slot, q.Get("scope"))
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, bannersResponse{Banners: banners})
}
