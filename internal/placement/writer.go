package placement

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/patrickwarner/portalads/internal/models"
)

// ErrCapacityConflict is returned by a strict create when the slot is full.
var ErrCapacityConflict = errors.New("slot capacity exceeded")

// ConflictError carries the validation result behind ErrCapacityConflict.
type ConflictError struct {
	Result models.ValidationResult
}

func (e *ConflictError) Error() string { return e.Result.Message }

// Unwrap lets errors.Is match ErrCapacityConflict.
func (e *ConflictError) Unwrap() error { return ErrCapacityConflict }

// Invalidator evicts cached deliveries for a slot.
type Invalidator interface {
	InvalidateSlot(ctx context.Context, slotName string)
}

// Writer applies editor writes to banners and keeps the delivery cache honest.
// Every successful write invalidates the affected slots.
type Writer struct {
	finder      *Finder
	validator   *Validator
	invalidator Invalidator
	logger      *zap.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewWriter creates a Writer. invalidator may be nil.
func NewWriter(finder *Finder, validator *Validator, invalidator Invalidator, logger *zap.Logger) *Writer {
	return &Writer{
		finder:      finder,
		validator:   validator,
		invalidator: invalidator,
		logger:      logger,
		locks:       make(map[string]*sync.Mutex),
	}
}

// checkIntegrity rejects banners that would violate data invariants.
func (w *Writer) checkIntegrity(b *models.Banner) error {
	b.Scope = b.NormalizedScope()
	if err := b.Validate(); err != nil {
		return err
	}
	if slot, ok := w.finder.catalog.Get(b.SlotName); ok && !slot.AllowsScope(b.Scope) {
		return fmt.Errorf("%w: %q in %q", models.ErrScopeNotAllowed, b.Scope, b.SlotName)
	}
	return nil
}

// Create stores a new banner. With strict set, the capacity check and the
// insert run under a per-slot lock and a full slot fails with a *ConflictError.
// A general banner is checked against every page of the slot since it is
// delivered on all of them. Strict checks only apply to banners created active.
func (w *Writer) Create(ctx context.Context, b *models.Banner, strict bool) error {
	if err := w.checkIntegrity(b); err != nil {
		return err
	}

	insert := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, w.finder.timeout)
		defer cancel()
		return w.finder.store.InsertBanner(ctx, b)
	}

	var err error
	if strict && b.Active {
		err = w.withSlotLock(ctx, b.SlotName, func(ctx context.Context) error {
			for _, scope := range w.affectedScopes(b) {
				res := w.validator.Validate(ctx, b.SlotName, scope, 0)
				if !res.Valid {
					return &ConflictError{Result: res}
				}
			}
			return insert(ctx)
		})
	} else {
		err = insert(ctx)
	}
	if err != nil {
		return err
	}

	w.invalidate(ctx, b.SlotName)
	w.logger.Info("banner created", zap.Int("banner_id", b.ID), zap.String("slot", b.SlotName), zap.String("scope", b.Scope))
	return nil
}

// Update replaces an existing banner. Both the previous and the new slot are
// invalidated when a banner moves.
func (w *Writer) Update(ctx context.Context, b *models.Banner) error {
	if err := w.checkIntegrity(b); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, w.finder.timeout)
	defer cancel()

	prev, err := w.finder.store.GetBanner(ctx, b.ID)
	if err != nil {
		return err
	}
	if err := w.finder.store.UpdateBanner(ctx, b); err != nil {
		return err
	}

	w.invalidate(ctx, b.SlotName)
	if prev.SlotName != b.SlotName {
		w.invalidate(ctx, prev.SlotName)
	}
	return nil
}

// Delete removes a banner permanently.
func (w *Writer) Delete(ctx context.Context, id int) error {
	ctx, cancel := context.WithTimeout(ctx, w.finder.timeout)
	defer cancel()

	prev, err := w.finder.store.GetBanner(ctx, id)
	if err != nil {
		return err
	}
	if err := w.finder.store.DeleteBanner(ctx, id); err != nil {
		return err
	}
	w.invalidate(ctx, prev.SlotName)
	return nil
}

// SetActive toggles a banner's active flag.
func (w *Writer) SetActive(ctx context.Context, id int, active bool) error {
	ctx, cancel := context.WithTimeout(ctx, w.finder.timeout)
	defer cancel()

	b, err := w.finder.store.GetBanner(ctx, id)
	if err != nil {
		return err
	}
	if err := w.finder.store.SetBannerActive(ctx, id, active); err != nil {
		return err
	}
	w.invalidate(ctx, b.SlotName)
	return nil
}

func (w *Writer) invalidate(ctx context.Context, slotName string) {
	if w.invalidator != nil {
		w.invalidator.InvalidateSlot(ctx, slotName)
	}
}

// affectedScopes lists the page scopes whose eligible set grows when b is
// added. Scoped banners and scope-agnostic slots need a single check.
func (w *Writer) affectedScopes(b *models.Banner) []string {
	scope := b.NormalizedScope()
	slot, ok := w.finder.catalog.Get(b.SlotName)
	if scope != models.DefaultScope || !ok || slot.ScopeAgnostic() {
		return []string{scope}
	}
	scopes := []string{models.DefaultScope}
	for _, sc := range slot.AllowedScopes {
		if sc != models.DefaultScope {
			scopes = append(scopes, sc)
		}
	}
	return scopes
}

// withSlotLock serializes fn per slot inside this process and, via the
// store, across instances. The lock is slot-wide because a general banner
// competes with every scoped banner of the slot.
func (w *Writer) withSlotLock(ctx context.Context, slotName string, fn func(ctx context.Context) error) error {
	w.locksMu.Lock()
	mu, ok := w.locks[slotName]
	if !ok {
		mu = &sync.Mutex{}
		w.locks[slotName] = mu
	}
	w.locksMu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	return w.finder.store.WithSlotLock(ctx, slotName, fn)
}
