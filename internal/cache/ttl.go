package cache

import (
	"context"
	"fetchguard/internal/types"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// TTL is an in-process cache with per-entry expiry and a hard entry bound.
// Lazy expiration on Get; CleanupExpired sweeps proactively.
// When full, the entry with the earliest expiry is evicted (ties: first inserted), not the least recently used.
type TTL[V any] struct {
	mu         sync.Mutex
	data       map[string]entry[V]
	maxSize    int
	defaultTTL time.Duration
	seq        uint64
	now        func() time.Time
}

type entry[V any] struct {
	val V
	exp time.Time
	seq uint64
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Total        int     `json:"total"`
	Expired      int     `json:"expired"`
	Valid        int     `json:"valid"`
	MaxSize      int     `json:"max_size"`
	UsagePercent float64 `json:"usage_percent"`
}

// NewTTL creates a cache holding at most maxSize entries. ttl is used by Set when it is given a
// non-positive TTL.
func NewTTL[V any](maxSize int, ttl time.Duration) *TTL[V] {
	if maxSize < types.MinCacheSize {
		maxSize = types.DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = types.DefaultCacheTTL * time.Second
	}
	return &TTL[V]{
		data:       make(map[string]entry[V], maxSize),
		maxSize:    maxSize,
		defaultTTL: ttl,
		now:        time.Now,
	}
}

// SetNowFn replaces the clock. Used in tests.
func (t *TTL[V]) SetNowFn(f func() time.Time) {
	t.mu.Lock()
	t.now = f
	t.mu.Unlock()
}

// Get returns the value and true if found and not expired; otherwise zero value and false.
// An expired entry is removed under the same lock that observed it.
func (t *TTL[V]) Get(k string) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.data[k]
	if !ok {
		var zero V
		return zero, false
	}
	if t.expired(e, t.now()) {
		delete(t.data, k)
		var zero V
		return zero, false
	}
	return e.val, true
}

// Set stores v under k. A non-positive ttl means the default TTL.
func (t *TTL[V]) Set(k string, v V, ttl time.Duration) {
	t.mu.Lock()
	t.setLocked(k, v, ttl)
	t.mu.Unlock()
}

// SetFunc computes the value with fn and stores it. fn runs outside the lock; if it fails nothing
// is written and nothing is evicted.
func (t *TTL[V]) SetFunc(k string, ttl time.Duration, fn func() (V, error)) error {
	v, err := fn()
	if err != nil {
		return err
	}
	t.Set(k, v, ttl)
	return nil
}

func (t *TTL[V]) setLocked(k string, v V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = t.defaultTTL
	}
	if _, exists := t.data[k]; !exists && len(t.data) >= t.maxSize {
		t.evictEarliestLocked()
	}
	t.seq++
	t.data[k] = entry[V]{val: v, exp: t.now().Add(ttl), seq: t.seq}
}

// evictEarliestLocked removes the entry with the smallest expiry. Must be called with the lock held.
func (t *TTL[V]) evictEarliestLocked() {
	var (
		victim string
		found  bool
		best   entry[V]
	)
	for k, e := range t.data {
		if !found || e.exp.Before(best.exp) || (e.exp.Equal(best.exp) && e.seq < best.seq) {
			victim, best, found = k, e, true
		}
	}
	if found {
		delete(t.data, victim)
		log.WithFields(log.Fields{
			"key":        victim,
			"expires_at": best.exp,
		}).Debug("cache full, evicted earliest-expiring entry")
	}
}

// Invalidate removes k. Returns true if it was present.
func (t *TTL[V]) Invalidate(k string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.data[k]
	delete(t.data, k)
	return ok
}

// InvalidatePattern removes every key containing substr literally. Returns the number removed.
func (t *TTL[V]) InvalidatePattern(substr string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k := range t.data {
		if strings.Contains(k, substr) {
			delete(t.data, k)
			n++
		}
	}
	return n
}

// CleanupExpired removes all expired entries and returns how many were removed.
func (t *TTL[V]) CleanupExpired() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	n := 0
	for k, e := range t.data {
		if t.expired(e, now) {
			delete(t.data, k)
			n++
		}
	}
	return n
}

func (t *TTL[V]) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	st := Stats{Total: len(t.data), MaxSize: t.maxSize}
	for _, e := range t.data {
		if t.expired(e, now) {
			st.Expired++
		}
	}
	st.Valid = st.Total - st.Expired
	st.UsagePercent = float64(st.Total) / float64(t.maxSize) * 100
	return st
}

// Len includes expired entries not yet removed.
func (t *TTL[V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.data)
}

func (t *TTL[V]) Clear() {
	t.mu.Lock()
	t.data = make(map[string]entry[V], t.maxSize)
	t.mu.Unlock()
}

// StartJanitor runs CleanupExpired every interval until ctx is done. The returned channel is closed
// once the loop has exited.
func (t *TTL[V]) StartJanitor(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := t.CleanupExpired(); n > 0 {
					log.WithField("removed", n).Debug("cache janitor sweep")
				}
			}
		}
	}()
	return done
}

// expired treats an entry as stale from the instant its TTL has fully elapsed.
func (t *TTL[V]) expired(e entry[V], now time.Time) bool {
	return !now.Before(e.exp)
}
