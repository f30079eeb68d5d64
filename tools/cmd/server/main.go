package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalads/internal/analytics"
	"github.com/patrickwarner/portalads/internal/api"
	"github.com/patrickwarner/portalads/internal/catalog"
	"github.com/patrickwarner/portalads/internal/config"
	"github.com/patrickwarner/portalads/internal/db"
	"github.com/patrickwarner/portalads/internal/engagement"
	"github.com/patrickwarner/portalads/internal/geoip"
	"github.com/patrickwarner/portalads/internal/observability"
	"github.com/patrickwarner/portalads/internal/schedule"
)

const limiterPruneInterval = time.Minute

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TempoEndpoint, cfg.Environment, cfg.TracingSampleRate)
		if err != nil {
			logger.Warn("tracing disabled", zap.Error(err))
		} else {
			defer shutdown()
		}
	}

	cat, err := catalog.Load(cfg.SlotCatalog)
	if err != nil {
		return fmt.Errorf("load slot catalog: %w", err)
	}
	logger.Info("slot catalog loaded", zap.String("path", cfg.SlotCatalog), zap.Int("slots", len(cat.All())))

	var store db.BannerStore
	if cfg.PostgresDSN != "" {
		pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
		if err != nil {
			return fmt.Errorf("failed to connect postgres: %w", err)
		}
		defer pg.Close()
		store = pg
	} else {
		logger.Warn("POSTGRES_DSN not set, banners are kept in memory")
		store = db.NewMemoryStore()
	}

	clock := schedule.SystemClock{}

	var (
		redisStore *db.RedisStore
		dedup      engagement.DedupStore
	)
	if cfg.RedisAddr != "" {
		redisStore, err = db.InitRedis(cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		defer redisStore.Close()
		dedup = redisStore
	} else {
		logger.Warn("REDIS_ADDR not set, dedup and cache invalidation are local to this instance")
		dedup = engagement.NewMemoryDedup(clock)
	}

	var geo *geoip.GeoIP
	if cfg.GeoIPDB != "" {
		geo, err = geoip.Init(cfg.GeoIPDB)
		if err != nil {
			return fmt.Errorf("failed to load geoip db: %w", err)
		}
		defer func() { _ = geo.Close() }()
	}

	sink, err := buildSink(logger, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("close event sink", zap.Error(err))
		}
	}()

	metricsRegistry := observability.NewPrometheusRegistry()
	gate := engagement.NewGate(dedup, cfg.ClickThrottle, cfg.ImpressionDedupTTL)
	recorder := engagement.NewRecorder(gate, sink, geo, logger, metricsRegistry)
	defer recorder.Wait()

	srvDeps := api.NewServer(logger, store, redisStore, cat, clock, recorder, metricsRegistry, cfg)

	if redisStore != nil {
		go func() {
			if err := srvDeps.Cache.Subscribe(ctx, redisStore); err != nil && ctx.Err() == nil {
				logger.Error("cache invalidation subscriber stopped", zap.Error(err))
			}
		}()
	}

	r := srvDeps.Router()
	r.Handle("/metrics", promhttp.Handler())

	var handler http.Handler = r
	if len(cfg.CORSAllowedOrigins) > 0 {
		handler = handlers.CORS(
			handlers.AllowedOrigins(cfg.CORSAllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Authorization", "Content-Type", engagement.SessionHeader}),
		)(handler)
	}
	handler = otelhttp.NewHandler(handler, cfg.ServiceName)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Banner server running", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	ticker := time.NewTicker(limiterPruneInterval)
	go func() {
		for {
			select {
			case <-ticker.C:
				if n := srvDeps.Limiter.Prune(); n > 0 {
					logger.Debug("pruned rate limit buckets", zap.Int("count", n))
				}
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}

// buildSink assembles the engagement sinks that are configured. Without any
// backend, only the most recent accepted events are kept in memory.
func buildSink(logger *zap.Logger, cfg config.Config) (analytics.Sink, error) {
	var sinks analytics.FanOut
	if cfg.ClickHouseDSN != "" {
		ch, err := analytics.InitClickHouse(cfg.ClickHouseDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect clickhouse: %w", err)
		}
		sinks = append(sinks, ch)
	}
	if len(cfg.KafkaBrokers) > 0 {
		k, err := analytics.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			_ = sinks.Close()
			return nil, fmt.Errorf("failed to create kafka writer: %w", err)
		}
		sinks = append(sinks, k)
	}
	switch len(sinks) {
	case 0:
		logger.Warn("no event sink configured, keeping recent engagement events in memory",
			zap.Int("buffer_size", cfg.EventBufferSize))
		return analytics.NewBoundedMemorySink(cfg.EventBufferSize), nil
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}
