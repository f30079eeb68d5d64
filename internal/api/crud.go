package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/patrickwarner/portalads/internal/db"
	"github.com/patrickwarner/portalads/internal/placement"
)

func bannerID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	return id, err == nil && id > 0
}

// ListBanners handles GET /api/banners?slot=, returning every banner with its
// derived status.
func (s *Server) ListBanners(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.dataContext(r)
	defer cancel()
	banners, err := s.Store.ListBanners(ctx, db.BannerFilter{SlotName: r.URL.Query().Get("slot")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	placement.SortForRotation(banners)

	now := s.Finder.Clock().Now()
	out := make([]placement.BannerStatus, 0, len(banners))
	for _, b := range banners {
		out = append(out, placement.NewBannerStatus(b, now))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetBanner handles GET /api/banners/{id}.
func (s *Server) GetBanner(w http.ResponseWriter, r *http.Request) {
	id, ok := bannerID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	ctx, cancel := s.dataContext(r)
	defer cancel()
	b, err := s.Store.GetBanner(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, placement.NewBannerStatus(b, s.Finder.Clock().Now()))
}

// CreateBanner handles POST /api/banners. With ?strict=true an active banner
// is only created when its slot has room; otherwise 409 carries the
// validation result.
func (s *Server) CreateBanner(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeBanner(w, r)
	if !ok {
		return
	}
	strict, _ := strconv.ParseBool(r.URL.Query().Get("strict"))
	if err := s.Writer.Create(r.Context(), &in, strict); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, in)
}

// UpdateBanner handles PUT /api/banners/{id}.
func (s *Server) UpdateBanner(w http.ResponseWriter, r *http.Request) {
	id, ok := bannerID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	in, ok := decodeBanner(w, r)
	if !ok {
		return
	}
	in.ID = id
	if err := s.Writer.Update(r.Context(), &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

// DeleteBanner handles DELETE /api/banners/{id}.
func (s *Server) DeleteBanner(w http.ResponseWriter, r *http.Request) {
	id, ok := bannerID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := s.Writer.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type activeRequest struct {
	Active *bool `json:"active"`
}

// SetBannerActive handles POST /api/banners/{id}/active {"active": bool}.
func (s *Server) SetBannerActive(w http.ResponseWriter, r *http.Request) {
	id, ok := bannerID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req activeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		http.Error(w, "active required", http.StatusBadRequest)
		return
	}
	if err := s.Writer.SetActive(r.Context(), id, *req.Active); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
