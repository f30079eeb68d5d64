package api

import (
	"context"
	"net/http"
	"time"
)

// HealthHandler reports ok, or 503 when the configured Redis is unreachable.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK

	if s.Redis != nil && s.Redis.Client != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := s.Redis.Client.Ping(ctx).Err(); err != nil {
			status["status"] = "degraded"
			status["redis"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, status)
}
