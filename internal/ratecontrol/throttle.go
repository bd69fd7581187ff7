package ratecontrol

import (
	"sync"
	"time"
)

// Throttler lets a call through at most once per wait. Calls made too soon are dropped, never queued.
type Throttler struct {
	mu    sync.Mutex
	wait  time.Duration
	last  time.Time
	fired bool
	now   func() time.Time
}

func NewThrottler(wait time.Duration) *Throttler {
	return &Throttler{wait: wait, now: time.Now}
}

// SetNowFn replaces the clock. Used in tests.
func (t *Throttler) SetNowFn(f func() time.Time) {
	t.mu.Lock()
	t.now = f
	t.mu.Unlock()
}

// Throttle runs fn synchronously and returns true if wait has passed since the last run;
// otherwise it returns false and fn is not scheduled for later.
func (t *Throttler) Throttle(fn func()) bool {
	t.mu.Lock()
	now := t.now()
	if t.fired && now.Sub(t.last) < t.wait {
		t.mu.Unlock()
		return false
	}
	t.last = now
	t.fired = true
	t.mu.Unlock()
	fn()
	return true
}

// Reset lets the next call through regardless of when the last one ran.
func (t *Throttler) Reset() {
	t.mu.Lock()
	t.fired = false
	t.mu.Unlock()
}
