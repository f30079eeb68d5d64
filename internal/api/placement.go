package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/patrickwarner/portalads/internal/middleware"
	"github.com/patrickwarner/portalads/internal/models"
)

func decodeValidationRequest(r *http.Request) (models.ValidationRequest, bool) {
	var req models.ValidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, false
	}
	req.SlotName = strings.TrimSpace(req.SlotName)
	return req, req.SlotName != ""
}

func excluded(req models.ValidationRequest) int {
	if req.ExcludeBannerID == nil {
		return 0
	}
	return *req.ExcludeBannerID
}

// ValidateHandler handles POST /api/validate. A full slot is a normal answer
// and is returned with 200.
func (s *Server) ValidateHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeValidationRequest(r)
	if !ok {
		http.Error(w, "slotName required", http.StatusBadRequest)
		return
	}
	res := s.Validator.Validate(r.Context(), req.SlotName, req.Scope, excluded(req))
	writeJSON(w, http.StatusOK, res)
}

type deactivateResponse struct {
	DeactivatedCount int `json:"deactivatedCount"`
}

// DeactivateConflictsHandler handles POST /api/deactivateConflicts.
func (s *Server) DeactivateConflictsHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeValidationRequest(r)
	if !ok {
		http.Error(w, "slotName required", http.StatusBadRequest)
		return
	}

	n, err := s.Resolver.DeactivateConflicts(r.Context(), req.SlotName, req.Scope, excluded(req))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if n > 0 {
		s.Cache.InvalidateSlot(r.Context(), req.SlotName)
		if id, ok := middleware.IdentityFromContext(r.Context()); ok {
			s.Logger.Info("conflicts resolved",
				zap.String("editor", id.Subject),
				zap.String("slot", req.SlotName),
				zap.Int("deactivated", n))
		}
	}
	writeJSON(w, http.StatusOK, deactivateResponse{DeactivatedCount: n})
}

// ScheduleHandler handles GET /api/schedule?slot=.
func (s *Server) ScheduleHandler(w http.ResponseWriter, r *http.Request) {
	report, err := s.Finder.ScheduleStatus(r.Context(), r.URL.Query().Get("slot"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// SlotsHandler handles GET /api/slots.
func (s *Server) SlotsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Catalog.All())
}

// CacheStatsHandler handles GET /api/cache.
func (s *Server) CacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Cache.Stats())
}

// CacheClearHandler handles DELETE /api/cache.
func (s *Server) CacheClearHandler(w http.ResponseWriter, r *http.Request) {
	s.Cache.Clear()
	w.WriteHeader(http.StatusNoContent)
}
