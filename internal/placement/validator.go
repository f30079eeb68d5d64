package placement

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalads/internal/models"
	"github.com/patrickwarner/portalads/internal/observability"
)

// GenericValidationFailure is returned to editors when the capacity check
// itself could not run.
const GenericValidationFailure = "Unable to verify slot capacity right now. Please try again."

// Validator compares the eligible set of a slot against its capacity.
type Validator struct {
	finder  *Finder
	logger  *zap.Logger
	metrics observability.MetricsRegistry
}

// NewValidator creates a Validator.
func NewValidator(finder *Finder, logger *zap.Logger, metrics observability.MetricsRegistry) *Validator {
	return &Validator{finder: finder, logger: logger, metrics: metrics}
}

// Validate reports whether one more eligible banner fits in the slot for the
// given scope. A banner being edited in place is excluded via excludeID.
// Unknown slots are unbounded. A data-access failure yields Valid=false.
func (v *Validator) Validate(ctx context.Context, slotName, scope string, excludeID int) models.ValidationResult {
	ctx, span := observability.StartSpan(ctx, "placement.validate",
		attribute.String("slot", slotName),
		attribute.String("scope", scope),
		attribute.Int("exclude_id", excludeID))
	defer span.End()

	eligible, err := v.finder.Eligible(ctx, slotName, scope, excludeID)
	if err != nil {
		v.logger.Error("capacity validation failed",
			zap.Error(err),
			zap.String("slot", slotName),
			zap.String("scope", scope))
		v.metrics.IncrementValidations("error")
		return models.ValidationResult{
			Valid:              false,
			ConflictingBanners: []models.ConflictingBanner{},
			Message:            GenericValidationFailure,
		}
	}

	slot := v.finder.catalog.Lookup(slotName)
	unbounded := slot == nil || slot.Unbounded()
	capacity := v.finder.catalog.Capacity(slotName)
	res := models.ValidationResult{
		Valid:              true,
		EligibleCount:      len(eligible),
		Capacity:           capacity,
		ConflictingBanners: []models.ConflictingBanner{},
	}

	if unbounded || len(eligible) < capacity {
		if unbounded {
			res.Message = fmt.Sprintf("Slot %q has no capacity limit.", slotName)
		} else {
			res.Message = fmt.Sprintf("Slot %q has %d of %d positions in use.", slotName, len(eligible), capacity)
		}
		v.metrics.IncrementValidations("valid")
		return res
	}

	res.Valid = false
	names := make([]string, 0, len(eligible))
	for _, b := range eligible {
		res.ConflictingBanners = append(res.ConflictingBanners, models.ConflictingBanner{
			ID:    b.ID,
			Name:  b.Name,
			Scope: b.NormalizedScope(),
		})
		names = append(names, b.Name)
	}
	res.Message = fmt.Sprintf("Slot %q is full (%d of %d) for scope %q. Conflicting banners: %s.",
		slotName, len(eligible), capacity, models.NormalizeScope(scope), strings.Join(names, ", "))
	v.metrics.IncrementValidations("conflict")
	return res
}
