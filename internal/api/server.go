// Package api exposes the placement engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalads/internal/catalog"
	"github.com/patrickwarner/portalads/internal/config"
	"github.com/patrickwarner/portalads/internal/db"
	"github.com/patrickwarner/portalads/internal/delivery"
	"github.com/patrickwarner/portalads/internal/engagement"
	"github.com/patrickwarner/portalads/internal/middleware"
	"github.com/patrickwarner/portalads/internal/models"
	"github.com/patrickwarner/portalads/internal/observability"
	"github.com/patrickwarner/portalads/internal/placement"
	"github.com/patrickwarner/portalads/internal/ratelimit"
	"github.com/patrickwarner/portalads/internal/schedule"
)

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger    *zap.Logger
	Store     db.BannerStore
	Redis     *db.RedisStore
	Catalog   *catalog.Catalog
	Finder    *placement.Finder
	Validator *placement.Validator
	Resolver  *placement.Resolver
	Writer    *placement.Writer
	Cache     *delivery.Cache
	Recorder  *engagement.Recorder
	Limiter   *ratelimit.KeyedLimiter
	Metrics   observability.MetricsRegistry
	Config    config.Config
	// Now is the time source for token checks. Defaults to time.Now.
	Now func() time.Time
}

// NewServer wires the placement engine, delivery cache and engagement
// recorder around store. redis may be nil; recorder may be nil to disable
// the event sink.
func NewServer(logger *zap.Logger, store db.BannerStore, redis *db.RedisStore, cat *catalog.Catalog, clock schedule.Clock, recorder *engagement.Recorder, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	finder := placement.NewFinder(store, cat, clock, cfg.DataAccessTimeout)
	validator := placement.NewValidator(finder, logger, metrics)

	opts := []delivery.Option{delivery.WithTTL(cfg.CacheTTL), delivery.WithClock(finder.Clock())}
	if redis != nil {
		opts = append(opts, delivery.WithBroadcaster(redis))
	}
	cache := delivery.NewCache(finder, logger, metrics, opts...)

	return &Server{
		Logger:    logger,
		Store:     store,
		Redis:     redis,
		Catalog:   cat,
		Finder:    finder,
		Validator: validator,
		Resolver:  placement.NewResolver(finder, logger, metrics),
		Writer:    placement.NewWriter(finder, validator, cache, logger),
		Cache:     cache,
		Recorder:  recorder,
		Limiter: ratelimit.NewKeyedLimiter(ratelimit.Config{
			Capacity:   cfg.RateLimitCapacity,
			RefillRate: cfg.RateLimitRefillRate,
			Enabled:    cfg.RateLimitEnabled,
		}, metrics, nil),
		Metrics: metrics,
		Config:  cfg,
		Now:     time.Now,
	}
}

// Router builds the HTTP routes. Everything under /api requires an
// authenticated identity.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(s.Logger))
	r.Use(middleware.RecordMetrics(s.Metrics))

	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/banners", s.BannersHandler).Methods(http.MethodGet)

	events := r.Path("/event").Subrouter()
	events.Use(middleware.RateLimitByIP(s.Limiter))
	events.Methods(http.MethodPost).HandlerFunc(s.EventHandler)

	a := r.PathPrefix("/api").Subrouter()
	a.Use(middleware.RequireIdentity(middleware.AuthConfig{
		Secret: []byte(s.Config.TokenSecret),
		TTL:    s.Config.TokenTTL,
		Now:    s.Now,
	}, s.Logger))
	a.Use(middleware.RequireEditor)

	a.HandleFunc("/validate", s.ValidateHandler).Methods(http.MethodPost)
	a.HandleFunc("/deactivateConflicts", s.DeactivateConflictsHandler).Methods(http.MethodPost)
	a.HandleFunc("/schedule", s.ScheduleHandler).Methods(http.MethodGet)
	a.HandleFunc("/slots", s.SlotsHandler).Methods(http.MethodGet)
	a.HandleFunc("/cache", s.CacheStatsHandler).Methods(http.MethodGet)
	a.HandleFunc("/cache", s.CacheClearHandler).Methods(http.MethodDelete)

	a.HandleFunc("/banners", s.ListBanners).Methods(http.MethodGet)
	a.HandleFunc("/banners", s.CreateBanner).Methods(http.MethodPost)
	a.HandleFunc("/banners/{id:[0-9]+}", s.GetBanner).Methods(http.MethodGet)
	a.HandleFunc("/banners/{id:[0-9]+}", s.UpdateBanner).Methods(http.MethodPut)
	a.HandleFunc("/banners/{id:[0-9]+}", s.DeleteBanner).Methods(http.MethodDelete)
	a.HandleFunc("/banners/{id:[0-9]+}/active", s.SetBannerActive).Methods(http.MethodPost)
	return r
}

// dataContext bounds direct store calls made by handlers.
func (s *Server) dataContext(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := s.Config.DataAccessTimeout
	if timeout <= 0 {
		timeout = placement.DefaultDataAccessTimeout
	}
	return context.WithTimeout(r.Context(), timeout)
}

// decodeBanner reads a banner from the request body, answering 400 itself
// when the body is not valid JSON.
func decodeBanner(w http.ResponseWriter, r *http.Request) (models.Banner, bool) {
	var b models.Banner
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return b, false
	}
	return b, true
}

// helper function to write JSON response
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *placement.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, conflict.Result)
	case errors.Is(err, models.ErrNotFound):
		http.Error(w, "banner not found", http.StatusNotFound)
	case errors.Is(err, models.ErrInvalidSchedule),
		errors.Is(err, models.ErrScopeNotAllowed),
		errors.Is(err, models.ErrMissingField):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		middleware.LoggerFromRequest(r, s.Logger).Error("request failed", zap.Error(err), zap.String("path", r.URL.Path))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
