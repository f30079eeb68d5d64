package engagement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalads/internal/models"
	"github.com/patrickwarner/portalads/internal/schedule"
)

// DefaultEmitTimeout bounds a single emission.
const DefaultEmitTimeout = 5 * time.Second

// Tracker reports engagement for one visitor session and placement.
// Emission is fire-and-forget: errors are logged, never returned, and a new
// emission cancels the one still in flight.
type Tracker struct {
	sessionID string
	slotName  string
	scope     string

	gate        *Gate
	emitter     Emitter
	clock       schedule.Clock
	logger      *zap.Logger
	emitTimeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithPlacement tags emitted events with the slot and scope they were shown in.
func WithPlacement(slotName, scope string) TrackerOption {
	return func(t *Tracker) {
		t.slotName = slotName
		t.scope = scope
	}
}

// WithTrackerClock sets the clock used for event timestamps.
func WithTrackerClock(clock schedule.Clock) TrackerOption {
	return func(t *Tracker) { t.clock = clock }
}

// WithEmitTimeout overrides DefaultEmitTimeout.
func WithEmitTimeout(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		if d > 0 {
			t.emitTimeout = d
		}
	}
}

// NewTracker creates a Tracker. An empty sessionID gets a random one.
func NewTracker(sessionID string, gate *Gate, emitter Emitter, logger *zap.Logger, opts ...TrackerOption) *Tracker {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	t := &Tracker{
		sessionID:   sessionID,
		gate:        gate,
		emitter:     emitter,
		clock:       schedule.SystemClock{},
		logger:      logger,
		emitTimeout: DefaultEmitTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SessionID returns the session the tracker reports for.
func (t *Tracker) SessionID() string { return t.sessionID }

// RecordImpression emits an impression the first time bannerID is seen in
// this session. It reports whether an emission was started.
func (t *Tracker) RecordImpression(ctx context.Context, bannerID int) bool {
	return t.record(ctx, bannerID, models.EventImpression)
}

// RecordClick emits a click unless another click on bannerID was emitted
// within the throttle window. It reports whether an emission was started.
func (t *Tracker) RecordClick(ctx context.Context, bannerID int) bool {
	return t.record(ctx, bannerID, models.EventClick)
}

func (t *Tracker) record(ctx context.Context, bannerID int, eventType string) bool {
	ok, err := t.gate.Allow(ctx, t.sessionID, bannerID, eventType)
	if err != nil {
		// Dedup failures drop the event so a broken store cannot cause floods.
		t.logger.Debug("engagement dedup failed", zap.Error(err), zap.Int("banner_id", bannerID))
		return false
	}
	if !ok {
		return false
	}

	t.emit(models.EngagementEvent{
		ID:         uuid.NewString(),
		BannerID:   bannerID,
		EventType:  eventType,
		Scope:      t.scope,
		SlotName:   t.slotName,
		SessionID:  t.sessionID,
		OccurredAt: t.clock.Now().UTC(),
	})
	return true
}

func (t *Tracker) emit(ev models.EngagementEvent) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if t.cancel != nil {
		t.cancel()
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.emitTimeout)
	t.cancel = cancel
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		defer cancel()
		if err := t.emitter.Emit(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
			t.logger.Debug("engagement emit failed",
				zap.Error(err),
				zap.Int("banner_id", ev.BannerID),
				zap.String("event_type", ev.EventType))
		}
	}()
}

// Wait blocks until every started emission has finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// Close cancels the in-flight emission and stops accepting new ones.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.mu.Unlock()
	t.wg.Wait()
}
