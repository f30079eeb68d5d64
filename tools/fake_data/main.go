package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/portalads/internal/catalog"
	"github.com/patrickwarner/portalads/internal/config"
	"github.com/patrickwarner/portalads/internal/db"
	"github.com/patrickwarner/portalads/internal/models"
	"github.com/patrickwarner/portalads/internal/observability"
	"github.com/patrickwarner/portalads/internal/placement"
	"github.com/patrickwarner/portalads/internal/schedule"
)

var (
	perSlot   = flag.Int("banners", 4, "banners per slot")
	scheduled = flag.Float64("scheduled", 0.25, "share of banners with a future start")
	expired   = flag.Float64("expired", 0.1, "share of banners whose window already ended")
	strict    = flag.Bool("strict", true, "reject active banners that exceed slot capacity")
	seed      = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
)

var (
	adjectives = []string{"Spring", "Summer", "Open", "Annual", "Weekend", "Student", "Member", "Late"}
	subjects   = []string{"Festival", "Fair", "Lecture", "Concert", "Exhibition", "Workshop", "Market", "Run"}
)

// redisInvalidator forwards writer invalidations to running servers.
type redisInvalidator struct {
	rs     *db.RedisStore
	logger *zap.Logger
}

func (i redisInvalidator) InvalidateSlot(ctx context.Context, slotName string) {
	if i.rs == nil {
		return
	}
	if err := i.rs.PublishInvalidation(ctx, slotName); err != nil {
		i.logger.Warn("publish invalidation", zap.String("slot", slotName), zap.Error(err))
	}
}

func main() {
	flag.Parse()

	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	if cfg.PostgresDSN == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}
	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	cat, err := catalog.Load(cfg.SlotCatalog)
	if err != nil {
		logger.Fatal("load slot catalog", zap.Error(err))
	}

	inv := redisInvalidator{logger: logger}
	if cfg.RedisAddr != "" {
		rs, err := db.InitRedis(cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, servers refresh on TTL", zap.Error(err))
		} else {
			defer rs.Close()
			inv.rs = rs
		}
	}

	clock := schedule.SystemClock{}
	metrics := observability.NewNoOpRegistry()
	finder := placement.NewFinder(pg, cat, clock, cfg.DataAccessTimeout)
	validator := placement.NewValidator(finder, logger, metrics)
	writer := placement.NewWriter(finder, validator, inv, logger)

	r := rand.New(rand.NewSource(*seed))
	ctx := context.Background()
	now := clock.Now()

	var created, rejected int
	for _, slot := range cat.All() {
		for i := 0; i < *perSlot; i++ {
			b := randomBanner(r, slot, i, now)
			err := writer.Create(ctx, &b, *strict)
			switch {
			case err == nil:
				created++
				logger.Debug("banner created", zap.Int("id", b.ID), zap.String("slot", b.SlotName), zap.String("scope", b.Scope))
			case errors.Is(err, placement.ErrCapacityConflict):
				rejected++
				logger.Info("banner rejected", zap.String("slot", b.SlotName), zap.String("scope", b.Scope), zap.Error(err))
			default:
				logger.Fatal("insert banner", zap.Error(err))
			}
		}
	}

	logger.Info("seed complete",
		zap.Int64("seed", *seed),
		zap.Int("created", created),
		zap.Int("rejected", rejected))
}

func randomBanner(r *rand.Rand, slot models.Slot, idx int, now time.Time) models.Banner {
	name := fmt.Sprintf("%s %s %d", adjectives[r.Intn(len(adjectives))], subjects[r.Intn(len(subjects))], idx+1)
	b := models.Banner{
		Name:                    name,
		SlotName:                slot.Name,
		Scope:                   randomScope(r, slot),
		ImageRef:                fmt.Sprintf("banners/%s/%s.png", strings.ToLower(slot.Name), slug(name)),
		TargetLink:              "https://portal.example.com/" + slug(name),
		Width:                   slot.RecommendedWidth,
		Height:                  slot.RecommendedHeight,
		DisplayOrder:            idx,
		RotationIntervalSeconds: 4 + r.Intn(6),
		Active:                  true,
	}

	switch p := r.Float64(); {
	case p < *scheduled:
		start := now.Add(time.Duration(1+r.Intn(72)) * time.Hour)
		end := start.Add(time.Duration(1+r.Intn(14)) * 24 * time.Hour)
		b.ScheduleStart, b.ScheduleEnd = &start, &end
	case p < *scheduled+*expired:
		end := now.Add(-time.Duration(1+r.Intn(72)) * time.Hour)
		start := end.Add(-7 * 24 * time.Hour)
		b.ScheduleStart, b.ScheduleEnd = &start, &end
	default:
		if r.Intn(2) == 0 {
			end := now.Add(time.Duration(1+r.Intn(30)) * 24 * time.Hour)
			b.ScheduleEnd = &end
		}
	}
	return b
}

func randomScope(r *rand.Rand, slot models.Slot) string {
	var scopes []string
	for _, s := range slot.AllowedScopes {
		if s != "all" {
			scopes = append(scopes, s)
		}
	}
	if len(scopes) == 0 || r.Intn(3) == 0 {
		return models.DefaultScope
	}
	return scopes[r.Intn(len(scopes))]
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "-")
}
