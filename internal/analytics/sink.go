// Package analytics stores engagement events.
package analytics

import (
	"context"
	"errors"
	"sync"

	"github.com/patrickwarner/portalads/internal/models"
)

// ErrUnavailable is returned when a sink has no backing connection.
var ErrUnavailable = errors.New("analytics unavailable")

// Sink persists engagement events.
type Sink interface {
	Record(ctx context.Context, ev models.EngagementEvent) error
	Close() error
}

// FanOut writes every event to all sinks. Record returns the joined errors of
// the sinks that failed.
type FanOut []Sink

// Record implements Sink.
func (f FanOut) Record(ctx context.Context, ev models.EngagementEvent) error {
	var errs []error
	for _, s := range f {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (f FanOut) Close() error {
	var errs []error
	for _, s := range f {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps events in memory. It backs tests and runs without
// ClickHouse or Kafka. A bounded sink keeps only the most recent events.
type MemorySink struct {
	mu     sync.Mutex
	max    int
	events []models.EngagementEvent
	// next is the slot the following event overwrites once a bounded sink is full.
	next    int
	dropped uint64
}

// NewMemorySink creates an unbounded MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// NewBoundedMemorySink creates a MemorySink that keeps at most size events,
// dropping the oldest. A size of zero or less is unbounded.
func NewBoundedMemorySink(size int) *MemorySink {
	if size < 0 {
		size = 0
	}
	return &MemorySink{max: size}
}

// Record implements Sink.
func (m *MemorySink) Record(ctx context.Context, ev models.EngagementEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.max == 0 || len(m.events) < m.max {
		m.events = append(m.events, ev)
		return nil
	}
	m.events[m.next] = ev
	m.next = (m.next + 1) % m.max
	m.dropped++
	return nil
}

// Events returns a copy of the retained events, oldest first.
func (m *MemorySink) Events() []models.EngagementEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.EngagementEvent, 0, len(m.events))
	out = append(out, m.events[m.next:]...)
	return append(out, m.events[:m.next]...)
}

// Dropped returns how many events a bounded sink has overwritten.
func (m *MemorySink) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Close implements Sink.
func (m *MemorySink) Close() error { return nil }
