package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/patrickwarner/portalads/internal/engagement"
	"github.com/patrickwarner/portalads/internal/models"
)

type eventRequest struct {
	BannerID  int    `json:"bannerId"`
	EventType string `json:"eventType"`
	Scope     string `json:"scope"`
	SlotName  string `json:"slotName"`
}

type eventResponse struct {
	Outcome engagement.Outcome `json:"outcome"`
}

// EventHandler handles POST /event. Well-formed events are always answered
// with 202; recording happens in the background.
func (s *Server) EventHandler(w http.ResponseWriter, r *http.Request) {
	if s.Recorder == nil {
		http.Error(w, "event sink unavailable", http.StatusServiceUnavailable)
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.Metrics.IncrementEventDropped("bad_event")
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.BannerID <= 0 || !models.ValidEventType(req.EventType) {
		s.Metrics.IncrementEventDropped("bad_event")
		http.Error(w, "bannerId and eventType (impression|click) required", http.StatusBadRequest)
		return
	}

	session := strings.TrimSpace(r.Header.Get(engagement.SessionHeader))
	if session == "" {
		session = uuid.NewString()
	}
	w.Header().Set(engagement.SessionHeader, session)

	outcome := s.Recorder.Accept(r.Context(), models.EngagementEvent{
		BannerID:  req.BannerID,
		EventType: req.EventType,
		Scope:     req.Scope,
		SlotName:  req.SlotName,
		SessionID: session,
	}, r)
	writeJSON(w, http.StatusAccepted, eventResponse{Outcome: outcome})
}
