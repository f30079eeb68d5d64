package engagement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/portalads/internal/analytics"
	"github.com/patrickwarner/portalads/internal/models"
)

// SessionHeader carries the visitor session to the event sink.
const SessionHeader = "X-Session-ID"

// Emitter delivers an engagement event somewhere.
type Emitter interface {
	Emit(ctx context.Context, ev models.EngagementEvent) error
}

// HTTPEmitter posts events to the /event endpoint of a portalads server.
type HTTPEmitter struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPEmitter creates an emitter for the given event endpoint URL.
func NewHTTPEmitter(endpoint string, timeout time.Duration, logger *zap.Logger) *HTTPEmitter {
	return &HTTPEmitter{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type eventPayload struct {
	BannerID  int    `json:"bannerId"`
	EventType string `json:"eventType"`
	Scope     string `json:"scope,omitempty"`
	SlotName  string `json:"slotName,omitempty"`
}

// Emit implements Emitter.
func (e *HTTPEmitter) Emit(ctx context.Context, ev models.EngagementEvent) error {
	body, err := json.Marshal(eventPayload{
		BannerID:  ev.BannerID,
		EventType: ev.EventType,
		Scope:     ev.Scope,
		SlotName:  ev.SlotName,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if ev.SessionID != "" {
		req.Header.Set(SessionHeader, ev.SessionID)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil && e.logger != nil {
			e.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}

// SinkEmitter writes events straight into an analytics sink.
type SinkEmitter struct {
	Sink analytics.Sink
}

// Emit implements Emitter.
func (e SinkEmitter) Emit(ctx context.Context, ev models.EngagementEvent) error {
	return e.Sink.Record(ctx, ev)
}
