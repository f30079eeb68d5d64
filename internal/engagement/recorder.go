package engagement

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/avct/uasurfer"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalads/internal/analytics"
	"github.com/patrickwarner/portalads/internal/geoip"
	"github.com/patrickwarner/portalads/internal/models"
	"github.com/patrickwarner/portalads/internal/observability"
	"github.com/patrickwarner/portalads/internal/schedule"
)

// DeviceType maps a User-Agent to desktop, mobile, tablet or other.
func DeviceType(u *uasurfer.UserAgent) string {
	switch u.DeviceType {
	case uasurfer.DeviceComputer:
		return "desktop"
	case uasurfer.DevicePhone:
		return "mobile"
	case uasurfer.DeviceTablet:
		return "tablet"
	default:
		return "other"
	}
}

// Enrich fills device type, bot flag and country from the request.
func Enrich(ev *models.EngagementEvent, r *http.Request, geo *geoip.GeoIP) {
	if ua := r.Header.Get("User-Agent"); ua != "" {
		u := uasurfer.Parse(ua)
		ev.DeviceType = DeviceType(u)
		ev.IsBot = u.IsBot()
	}
	ev.Country = geo.Country(geoip.ClientIP(r))
}

// Outcome describes what the recorder did with an event.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeBot       Outcome = "bot"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeThrottled Outcome = "throttled"
	OutcomeError     Outcome = "dedup_error"
)

// Recorder is the server-side end of engagement tracking. It re-applies the
// session rules, drops bots and writes accepted events to the sink in the
// background.
type Recorder struct {
	gate    *Gate
	sink    analytics.Sink
	geo     *geoip.GeoIP
	clock   schedule.Clock
	logger  *zap.Logger
	metrics observability.MetricsRegistry
	timeout time.Duration
	// logRate is the share of accepted events logged at debug level.
	logRate float64

	wg sync.WaitGroup
}

// NewRecorder creates a Recorder. geo may be nil.
func NewRecorder(gate *Gate, sink analytics.Sink, geo *geoip.GeoIP, logger *zap.Logger, metrics observability.MetricsRegistry) *Recorder {
	return &Recorder{
		gate:    gate,
		sink:    sink,
		geo:     geo,
		clock:   schedule.SystemClock{},
		logger:  logger,
		metrics: metrics,
		timeout: DefaultEmitTimeout,
		logRate: observability.GetSamplingRate(),
	}
}

// SetClock overrides the clock used for event timestamps.
func (rec *Recorder) SetClock(clock schedule.Clock) { rec.clock = clock }

// Accept enriches ev from r, applies bot and dedup rules, and hands accepted
// events to the sink asynchronously.
func (rec *Recorder) Accept(ctx context.Context, ev models.EngagementEvent, r *http.Request) Outcome {
	Enrich(&ev, r, rec.geo)
	if ev.IsBot {
		rec.metrics.IncrementEventDropped(string(OutcomeBot))
		return OutcomeBot
	}

	ok, err := rec.gate.Allow(ctx, ev.SessionID, ev.BannerID, ev.EventType)
	if err != nil {
		rec.logger.Warn("engagement dedup failed", zap.Error(err), zap.Int("banner_id", ev.BannerID))
		rec.metrics.IncrementEventDropped(string(OutcomeError))
		return OutcomeError
	}
	if !ok {
		outcome := OutcomeDuplicate
		if ev.EventType == models.EventClick {
			outcome = OutcomeThrottled
		}
		rec.metrics.IncrementEventDropped(string(outcome))
		return outcome
	}

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = rec.clock.Now().UTC()
	}
	rec.metrics.IncrementEvent(ev.EventType)
	if observability.ShouldSample(rec.logRate) {
		rec.logger.Debug("engagement accepted",
			zap.String("event_type", ev.EventType),
			zap.Int("banner_id", ev.BannerID),
			zap.String("slot", ev.SlotName),
			zap.String("device", ev.DeviceType),
			zap.String("country", ev.Country))
	}

	rec.wg.Add(1)
	go func() {
		defer rec.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), rec.timeout)
		defer cancel()
		if err := rec.sink.Record(ctx, ev); err != nil {
			rec.logger.Error("failed to record engagement event",
				zap.Error(err),
				zap.Int("banner_id", ev.BannerID),
				zap.String("event_type", ev.EventType))
		}
	}()
	return OutcomeAccepted
}

// Wait blocks until background writes have finished.
func (rec *Recorder) Wait() {
	rec.wg.Wait()
}
