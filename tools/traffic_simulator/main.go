package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/patrickwarner/portalads/internal/analytics"
	"github.com/patrickwarner/portalads/internal/engagement"
	"github.com/patrickwarner/portalads/internal/models"
	"github.com/patrickwarner/portalads/internal/observability"
	"github.com/patrickwarner/portalads/internal/rotation"
	"github.com/patrickwarner/portalads/internal/schedule"
)

var (
	server    string
	slotCSV   string
	scopeCSV  string
	visitors  int
	conc      int
	visit     time.Duration
	clickRate float64
	stats     bool
	debug     bool
	label     string
	emitWait  time.Duration
	local     bool
)

var logger *zap.Logger

var httpClient *http.Client

const statsInterval = 5 * time.Second

var (
	countVisits      uint64
	countEmpty       uint64
	countErrors      uint64
	countImpressions uint64
	countClicks      uint64
	countRotations   uint64
)

// visitor is one simulated page view: it renders a slot, rotates through
// the delivered banners and reports engagement the way the portal does.
type visitor struct {
	slot  string
	scope string
	rng   *rand.Rand
}

func main() {
	flag.StringVar(&server, "server", "http://localhost:8787", "portalads base URL")
	flag.StringVar(&slotCSV, "slots", "Header,Sidebar,Footer", "comma-separated slot names")
	flag.StringVar(&scopeCSV, "scopes", "general,news,events", "comma-separated page scopes")
	flag.IntVar(&visitors, "visitors", 100, "number of page views to simulate")
	flag.IntVar(&conc, "concurrency", 20, "concurrent page views")
	flag.DurationVar(&visit, "visit", 15*time.Second, "how long each page stays open")
	flag.Float64Var(&clickRate, "click-rate", 0.05, "probability of a click per displayed banner")
	flag.BoolVar(&stats, "stats", false, "print aggregated stats periodically")
	flag.BoolVar(&debug, "debug", false, "enable verbose debug logs")
	flag.StringVar(&label, "label", "", "label to identify this run")
	flag.DurationVar(&emitWait, "emit-timeout", engagement.DefaultEmitTimeout, "timeout for a single event emission")
	flag.BoolVar(&local, "local-events", false, "keep engagement events in process instead of posting them to /event")
	flag.Parse()

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	var err error
	logger, err = observability.InitLoggerWithLevel(level, "traffic-simulator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	httpClient = &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			MaxConnsPerHost:     50,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	if label == "" {
		label = time.Now().Format(time.RFC3339)
	}

	slots := splitCSV(slotCSV)
	scopes := splitCSV(scopeCSV)
	if len(slots) == 0 {
		logger.Fatal("at least one slot is required")
	}
	if len(scopes) == 0 {
		scopes = []string{models.DefaultScope}
	}

	var emitter engagement.Emitter = engagement.NewHTTPEmitter(strings.TrimRight(server, "/")+"/event", emitWait, logger)
	var localSink *analytics.MemorySink
	if local {
		localSink = analytics.NewBoundedMemorySink(visitors * 64)
		emitter = engagement.SinkEmitter{Sink: localSink}
	}

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	var wg sync.WaitGroup
	sem := make(chan struct{}, conc)
	done := make(chan struct{})

	if stats {
		go func() {
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					printStats()
				case <-done:
					return
				}
			}
		}()
	}

	for i := 0; i < visitors; i++ {
		v := visitor{
			slot:  slots[r.Intn(len(slots))],
			scope: scopes[r.Intn(len(scopes))],
			rng:   rand.New(rand.NewSource(r.Int63())),
		}
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			v.run(emitter)
		}()
	}
	wg.Wait()
	close(done)
	printStats()
	if localSink != nil {
		logger.Info("local events",
			zap.Int("retained", len(localSink.Events())),
			zap.Uint64("dropped", localSink.Dropped()))
	}
}

func (v visitor) run(emitter engagement.Emitter) {
	atomic.AddUint64(&countVisits, 1)
	ctx, cancel := context.WithTimeout(context.Background(), visit+10*time.Second)
	defer cancel()

	banners, err := fetchBanners(ctx, v.slot, v.scope)
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("fetch banners", zap.String("slot", v.slot), zap.Error(err))
		return
	}
	if len(banners) == 0 {
		atomic.AddUint64(&countEmpty, 1)
		logger.Debug("slot empty", zap.String("slot", v.slot), zap.String("scope", v.scope))
		return
	}

	clock := schedule.SystemClock{}
	gate := engagement.NewGate(engagement.NewMemoryDedup(clock), engagement.DefaultClickThrottle, engagement.DefaultImpressionTTL)
	tracker := engagement.NewTracker(uuid.NewString(), gate, emitter, logger,
		engagement.WithPlacement(v.slot, v.scope),
		engagement.WithEmitTimeout(emitWait))
	defer tracker.Close()

	shown := make(chan models.Banner, 1)
	ctrl := rotation.NewController(rotation.WithOnChange(func(_ int, b models.Banner) {
		atomic.AddUint64(&countRotations, 1)
		select {
		case shown <- b:
		default:
		}
	}))
	defer ctrl.Stop()

	display := func(b models.Banner) {
		if tracker.RecordImpression(ctx, b.ID) {
			atomic.AddUint64(&countImpressions, 1)
		}
		if v.rng.Float64() < clickRate && tracker.RecordClick(ctx, b.ID) {
			atomic.AddUint64(&countClicks, 1)
		}
	}

	// the first banner arrives through the change callback
	ctrl.SetBanners(banners, rotation.IntervalFor(banners))

	leave := time.NewTimer(visit)
	defer leave.Stop()
	for {
		select {
		case b := <-shown:
			display(b)
		case <-leave.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

func fetchBanners(ctx context.Context, slot, scope string) ([]models.Banner, error) {
	q := url.Values{}
	q.Set("slot", slot)
	q.Set("scope", scope)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(server, "/")+"/banners?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get banners: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var body struct {
		Banners []models.Banner `json:"banners"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode banners: %w", err)
	}
	return body.Banners, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printStats() {
	imps := atomic.LoadUint64(&countImpressions)
	clk := atomic.LoadUint64(&countClicks)
	var ctr float64
	if imps > 0 {
		ctr = float64(clk) / float64(imps)
	}
	logger.Info("stats",
		zap.String("run", label),
		zap.Uint64("visits", atomic.LoadUint64(&countVisits)),
		zap.Uint64("empty", atomic.LoadUint64(&countEmpty)),
		zap.Uint64("errors", atomic.LoadUint64(&countErrors)),
		zap.Uint64("rotations", atomic.LoadUint64(&countRotations)),
		zap.Uint64("impressions", imps),
		zap.Uint64("clicks", clk),
		zap.Float64("ctr", ctr))
}
