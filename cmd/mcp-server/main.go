package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalads/internal/catalog"
	"github.com/patrickwarner/portalads/internal/config"
	"github.com/patrickwarner/portalads/internal/db"
	"github.com/patrickwarner/portalads/internal/models"
	"github.com/patrickwarner/portalads/internal/observability"
	"github.com/patrickwarner/portalads/internal/placement"
	"github.com/patrickwarner/portalads/internal/schedule"
)

// PlacementInput names the slot and scope a tool works on.
type PlacementInput struct {
	SlotName  string `json:"slot_name" jsonschema:"slot to check, for example Header"`
	Scope     string `json:"scope,omitempty" jsonschema:"page scope, defaults to general"`
	ExcludeID int    `json:"exclude_id,omitempty" jsonschema:"banner id left out of the count, usually the one being edited"`
}

// ValidateOutput mirrors models.ValidationResult for tool callers.
type ValidateOutput struct {
	Valid         bool                       `json:"valid"`
	EligibleCount int                        `json:"eligible_count"`
	Capacity      int                        `json:"capacity"`
	Conflicting   []models.ConflictingBanner `json:"conflicting_banners"`
	Message       string                     `json:"message"`
}

type DeactivateOutput struct {
	DeactivatedCount int `json:"deactivated_count"`
}

type ScheduleInput struct {
	SlotName string `json:"slot_name,omitempty" jsonschema:"slot to report on, empty for all slots"`
}

// BannerLine is one banner in a schedule report. Times are RFC 3339, empty
// when the banner has no bound.
type BannerLine struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	SlotName      string `json:"slot_name"`
	Scope         string `json:"scope"`
	Status        string `json:"status"`
	Active        bool   `json:"active"`
	ScheduleStart string `json:"schedule_start,omitempty"`
	ScheduleEnd   string `json:"schedule_end,omitempty"`
}

type ScheduleOutput struct {
	Banners []BannerLine          `json:"banners"`
	Usage   []placement.SlotUsage `json:"usage"`
}

// invalidationPublisher tells running servers to drop cached deliveries.
type invalidationPublisher interface {
	PublishInvalidation(ctx context.Context, slotName string) error
}

// PortalServer holds the placement engine exposed as MCP tools.
type PortalServer struct {
	finder    *placement.Finder
	validator *placement.Validator
	resolver  *placement.Resolver
	publisher invalidationPublisher
	logger    *zap.Logger
}

func newPortalServer(store db.BannerStore, cat *catalog.Catalog, clock schedule.Clock, timeout time.Duration, publisher invalidationPublisher, logger *zap.Logger) *PortalServer {
	metrics := observability.NewNoOpRegistry()
	finder := placement.NewFinder(store, cat, clock, timeout)
	return &PortalServer{
		finder:    finder,
		validator: placement.NewValidator(finder, logger, metrics),
		resolver:  placement.NewResolver(finder, logger, metrics),
		publisher: publisher,
		logger:    logger,
	}
}

// ValidatePlacement implements the validate_placement tool.
func (s *PortalServer) ValidatePlacement(ctx context.Context, req *mcp.CallToolRequest, input PlacementInput) (*mcp.CallToolResult, ValidateOutput, error) {
	if input.SlotName == "" {
		return nil, ValidateOutput{}, fmt.Errorf("slot_name is required")
	}
	res := s.validator.Validate(ctx, input.SlotName, input.Scope, input.ExcludeID)
	out := ValidateOutput{
		Valid:         res.Valid,
		EligibleCount: res.EligibleCount,
		Capacity:      res.Capacity,
		Conflicting:   res.ConflictingBanners,
		Message:       res.Message,
	}
	if out.Conflicting == nil {
		out.Conflicting = []models.ConflictingBanner{}
	}
	return nil, out, nil
}

// DeactivateConflicts implements the deactivate_conflicts tool.
func (s *PortalServer) DeactivateConflicts(ctx context.Context, req *mcp.CallToolRequest, input PlacementInput) (*mcp.CallToolResult, DeactivateOutput, error) {
	if input.SlotName == "" {
		return nil, DeactivateOutput{}, fmt.Errorf("slot_name is required")
	}
	n, err := s.resolver.DeactivateConflicts(ctx, input.SlotName, input.Scope, input.ExcludeID)
	if err != nil {
		return nil, DeactivateOutput{}, fmt.Errorf("deactivate conflicts: %w", err)
	}
	if n > 0 && s.publisher != nil {
		if err := s.publisher.PublishInvalidation(ctx, input.SlotName); err != nil {
			s.logger.Warn("publish invalidation", zap.String("slot", input.SlotName), zap.Error(err))
		}
	}
	s.logger.Info("conflicts resolved",
		zap.String("slot", input.SlotName),
		zap.String("scope", input.Scope),
		zap.Int("deactivated", n))
	return nil, DeactivateOutput{DeactivatedCount: n}, nil
}

// ScheduleStatus implements the schedule_status tool.
func (s *PortalServer) ScheduleStatus(ctx context.Context, req *mcp.CallToolRequest, input ScheduleInput) (*mcp.CallToolResult, ScheduleOutput, error) {
	report, err := s.finder.ScheduleStatus(ctx, input.SlotName)
	if err != nil {
		return nil, ScheduleOutput{}, fmt.Errorf("schedule status: %w", err)
	}
	out := ScheduleOutput{Banners: make([]BannerLine, 0, len(report.Banners)), Usage: report.Usage}
	for _, b := range report.Banners {
		out.Banners = append(out.Banners, BannerLine{
			ID:            b.ID,
			Name:          b.Name,
			SlotName:      b.SlotName,
			Scope:         b.NormalizedScope(),
			Status:        string(b.Status),
			Active:        b.Active,
			ScheduleStart: formatTime(b.ScheduleStart),
			ScheduleEnd:   formatTime(b.ScheduleEnd),
		})
	}
	return nil, out, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (s *PortalServer) register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "validate_placement",
		Description: "Check whether a slot and scope can take another active banner",
	}, s.ValidatePlacement)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "deactivate_conflicts",
		Description: "Deactivate the lowest priority banners until the slot and scope fit their capacity",
	}, s.DeactivateConflicts)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "schedule_status",
		Description: "List banners with their schedule status and flag slots over capacity",
	}, s.ScheduleStatus)
}

func main() {
	cfg := config.Load()

	// stdout carries the protocol
	logger, err := observability.InitStderrLogger(cfg.ServiceName + "-mcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.PostgresDSN == "" {
		logger.Fatal("POSTGRES_DSN environment variable is required")
	}
	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pg.Close()

	cat, err := catalog.Load(cfg.SlotCatalog)
	if err != nil {
		logger.Fatal("Failed to load slot catalog", zap.String("path", cfg.SlotCatalog), zap.Error(err))
	}

	var publisher invalidationPublisher
	if cfg.RedisAddr != "" {
		rs, err := db.InitRedis(cfg.RedisAddr)
		if err != nil {
			logger.Warn("Redis unavailable, running servers refresh on TTL only", zap.Error(err))
		} else {
			defer rs.Close()
			publisher = rs
		}
	}

	portal := newPortalServer(pg, cat, schedule.SystemClock{}, cfg.DataAccessTimeout, publisher, logger)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "portalads",
		Version: "1.0.0",
	}, nil)
	portal.register(server)

	logger.Info("MCP Server running via stdio")
	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}
