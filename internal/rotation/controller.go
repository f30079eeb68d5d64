// Package rotation cycles through a delivered banner list on a timer.
package rotation

import (
	"errors"
	"sync"
	"time"

	"github.com/patrickwarner/portalads/internal/models"
)

const (
	// MinInterval is the shortest rotation period ever armed.
	MinInterval = 2 * time.Second
	// DefaultInterval applies when the first banner sets no interval.
	DefaultInterval = 5 * time.Second
)

// ErrIndexOutOfRange is returned by Select for an index outside the list.
var ErrIndexOutOfRange = errors.New("banner index out of range")

// Timer is the part of *time.Timer the controller needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. The default wraps time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// IntervalFor returns the rotation interval of a list: the first banner's
// RotationIntervalSeconds, DefaultInterval when unset.
func IntervalFor(banners []models.Banner) time.Duration {
	if len(banners) == 0 || banners[0].RotationIntervalSeconds <= 0 {
		return DefaultInterval
	}
	return time.Duration(banners[0].RotationIntervalSeconds) * time.Second
}

// Controller holds the current position in a banner list and advances it
// periodically. It is safe for concurrent use.
type Controller struct {
	mu       sync.Mutex
	banners  []models.Banner
	index    int
	interval time.Duration
	timer    Timer
	// gen identifies the armed timer; callbacks from older timers are ignored.
	gen     uint64
	stopped bool

	afterFunc AfterFunc
	onChange  func(index int, b models.Banner)
}

// Option configures a Controller.
type Option func(*Controller)

// WithAfterFunc replaces the timer source.
func WithAfterFunc(fn AfterFunc) Option {
	return func(c *Controller) { c.afterFunc = fn }
}

// WithOnChange registers a callback invoked after every index change.
// It runs without the controller lock held.
func WithOnChange(fn func(index int, b models.Banner)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// NewController creates an idle Controller.
func NewController(opts ...Option) *Controller {
	c := &Controller{afterFunc: realAfterFunc, interval: DefaultInterval}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetBanners installs a list. A list with the same banner IDs in the same
// order keeps the current position and timer; any other list restarts at the
// first banner. Intervals below MinInterval are raised to it.
func (c *Controller) SetBanners(banners []models.Banner, interval time.Duration) {
	if interval < MinInterval {
		interval = MinInterval
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	same := sameIdentity(c.banners, banners)
	c.banners = append([]models.Banner(nil), banners...)
	if same && interval == c.interval {
		c.mu.Unlock()
		return
	}
	c.interval = interval
	if !same {
		c.index = 0
	}
	c.armLocked()
	idx, b, notify := c.currentLocked()
	c.mu.Unlock()

	if notify && !same {
		c.notify(idx, b)
	}
}

// Select jumps to index i. The next automatic advance happens a full
// interval after the selection.
func (c *Controller) Select(i int) error {
	c.mu.Lock()
	if i < 0 || i >= len(c.banners) {
		c.mu.Unlock()
		return ErrIndexOutOfRange
	}
	c.index = i
	if !c.stopped {
		c.armLocked()
	}
	idx, b, _ := c.currentLocked()
	c.mu.Unlock()

	c.notify(idx, b)
	return nil
}

// Current returns the banner at the current position.
func (c *Controller) Current() (models.Banner, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, b, ok := c.currentLocked()
	return b, ok
}

// Index returns the current position.
func (c *Controller) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Running reports whether an automatic advance is scheduled.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

// Stop cancels rotation permanently. No advance happens after Stop returns.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.disarmLocked()
}

func (c *Controller) armLocked() {
	c.disarmLocked()
	if len(c.banners) <= 1 {
		return
	}
	c.gen++
	gen := c.gen
	c.timer = c.afterFunc(c.interval, func() { c.tick(gen) })
}

func (c *Controller) disarmLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	if c.stopped || gen != c.gen || len(c.banners) <= 1 {
		c.mu.Unlock()
		return
	}
	c.index = (c.index + 1) % len(c.banners)
	c.armLocked()
	idx, b, _ := c.currentLocked()
	c.mu.Unlock()

	c.notify(idx, b)
}

func (c *Controller) currentLocked() (int, models.Banner, bool) {
	if len(c.banners) == 0 {
		return 0, models.Banner{}, false
	}
	return c.index, c.banners[c.index], true
}

func (c *Controller) notify(idx int, b models.Banner) {
	if c.onChange != nil {
		c.onChange(idx, b)
	}
}

func sameIdentity(a, b []models.Banner) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
