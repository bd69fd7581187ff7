package ratecontrol

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter is an in-process token bucket per scope. It satisfies ports.RateLimiter for
// single-process deployments; the redis and ddb backends cover shared limits.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*scopedLimiter
	now      func() time.Time
}

type scopedLimiter struct {
	lim    *rate.Limiter
	rate   int
	window time.Duration
}

func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{limiters: make(map[string]*scopedLimiter), now: time.Now}
}

// SetNowFn replaces the clock. Used in tests.
func (l *LocalLimiter) SetNowFn(f func() time.Time) {
	l.mu.Lock()
	l.now = f
	l.mu.Unlock()
}

// Acquire allows bursts of up to ratePerWindow and refills at ratePerWindow per window.
func (l *LocalLimiter) Acquire(_ context.Context, scope string, ratePerWindow int, window time.Duration) (bool, error) {
	if ratePerWindow <= 0 || window <= 0 {
		return false, nil
	}
	l.mu.Lock()
	sl, ok := l.limiters[scope]
	if !ok || sl.rate != ratePerWindow || sl.window != window {
		sl = &scopedLimiter{
			lim:    rate.NewLimiter(rate.Every(window/time.Duration(ratePerWindow)), ratePerWindow),
			rate:   ratePerWindow,
			window: window,
		}
		l.limiters[scope] = sl
	}
	now := l.now()
	l.mu.Unlock()
	return sl.lim.AllowN(now, 1), nil
}
