package ratecontrol

import (
	"sync"
	"time"
)

// Debouncer runs only the last of a burst of calls, wait after the burst went quiet.
// There is at most one pending call; Debounce replaces it unconditionally.
type Debouncer struct {
	mu    sync.Mutex
	wait  time.Duration
	sched Scheduler
	timer Timer
	gen   uint64
}

func NewDebouncer(wait time.Duration) *Debouncer {
	return NewDebouncerWithScheduler(wait, RealScheduler)
}

func NewDebouncerWithScheduler(wait time.Duration, sched Scheduler) *Debouncer {
	return &Debouncer{wait: wait, sched: sched}
}

// Debounce cancels the pending call, if any, and schedules fn. Arguments are bound by the closure.
func (d *Debouncer) Debounce(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.sched.AfterFunc(d.wait, func() {
		// A timer that was already firing when it got replaced must not run.
		d.mu.Lock()
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Cancel discards the pending call. Returns true if there was one.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	return true
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// KeyedDebouncer keeps one independent debounce slot per key, e.g. one per search box or endpoint.
// Fired and cancelled slots are released.
type KeyedDebouncer struct {
	mu      sync.Mutex
	wait    time.Duration
	sched   Scheduler
	gen     uint64
	pending map[string]keyedSlot
}

type keyedSlot struct {
	timer Timer
	gen   uint64
}

func NewKeyedDebouncer(wait time.Duration, sched Scheduler) *KeyedDebouncer {
	if sched == nil {
		sched = RealScheduler
	}
	return &KeyedDebouncer{wait: wait, sched: sched, pending: make(map[string]keyedSlot)}
}

func (k *KeyedDebouncer) Debounce(key string, fn func()) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if slot, ok := k.pending[key]; ok {
		slot.timer.Stop()
	}
	k.gen++
	gen := k.gen
	t := k.sched.AfterFunc(k.wait, func() {
		k.mu.Lock()
		slot, ok := k.pending[key]
		if !ok || slot.gen != gen {
			k.mu.Unlock()
			return
		}
		delete(k.pending, key)
		k.mu.Unlock()
		fn()
	})
	k.pending[key] = keyedSlot{timer: t, gen: gen}
}

func (k *KeyedDebouncer) Cancel(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	slot, ok := k.pending[key]
	if !ok {
		return false
	}
	slot.timer.Stop()
	delete(k.pending, key)
	return true
}

// CancelAll drops every pending call and returns how many there were.
func (k *KeyedDebouncer) CancelAll() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := len(k.pending)
	for key, slot := range k.pending {
		slot.timer.Stop()
		delete(k.pending, key)
	}
	return n
}

func (k *KeyedDebouncer) Pending() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.pending)
}
