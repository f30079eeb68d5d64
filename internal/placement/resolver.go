package placement

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/patrickwarner/portalads/internal/observability"
)

// Resolver frees slot capacity by deactivating eligible banners. It does not
// touch the delivery cache; callers invalidate after a non-zero result.
type Resolver struct {
	finder  *Finder
	logger  *zap.Logger
	metrics observability.MetricsRegistry
}

// NewResolver creates a Resolver.
func NewResolver(finder *Finder, logger *zap.Logger, metrics observability.MetricsRegistry) *Resolver {
	return &Resolver{finder: finder, logger: logger, metrics: metrics}
}

// DeactivateConflicts sets active=false on every eligible banner in slotName
// and scope except excludeID, returning how many banners changed. Calling it
// again with the same arguments changes nothing and returns zero.
func (r *Resolver) DeactivateConflicts(ctx context.Context, slotName, scope string, excludeID int) (int, error) {
	eligible, err := r.finder.Eligible(ctx, slotName, scope, excludeID)
	if err != nil {
		return 0, fmt.Errorf("load eligible banners: %w", err)
	}
	if len(eligible) == 0 {
		return 0, nil
	}

	ids := make([]int, len(eligible))
	for i, b := range eligible {
		ids[i] = b.ID
	}

	ctx, cancel := context.WithTimeout(ctx, r.finder.timeout)
	defer cancel()
	n, err := r.finder.store.DeactivateBanners(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("deactivate banners: %w", err)
	}

	r.metrics.AddDeactivations(slotName, n)
	r.logger.Info("deactivated conflicting banners",
		zap.String("slot", slotName),
		zap.String("scope", scope),
		zap.Int("excluded_banner_id", excludeID),
		zap.Ints("banner_ids", ids),
		zap.Int("deactivated", n))
	return n, nil
}
