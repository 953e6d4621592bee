package input

import (
	"sync"
	"time"

	"github.com/bnema/wayidle/internal/timer"
)

// Debouncer rate-limits a function on the leading edge: the first Trigger
// runs it, later triggers within the window are dropped.
type Debouncer struct {
	clock  timer.Clock
	window time.Duration
	fn     func()

	mu   sync.Mutex
	last time.Time
	ran  bool
}

// NewDebouncer creates a debouncer calling fn at most once per window
func NewDebouncer(clock timer.Clock, window time.Duration, fn func()) *Debouncer {
	return &Debouncer{clock: clock, window: window, fn: fn}
}

// Trigger runs fn unless it ran less than one window ago. It reports whether
// fn ran.
func (d *Debouncer) Trigger() bool {
	d.mu.Lock()
	now := d.clock.Now()
	if d.ran && now.Sub(d.last) < d.window {
		d.mu.Unlock()
		return false
	}
	d.last = now
	d.ran = true
	d.mu.Unlock()

	d.fn()
	return true
}
