package reactor

import (
	"sync"
	"sync/atomic"
	"time"
)

// Timer is a single-shot, restartable timer whose callback runs on the loop
type Timer struct {
	loop *Loop
	fn   func()

	mu sync.Mutex
	t  *time.Timer

	// Bumped on every Start/Stop; a fire posted for an older generation is discarded
	gen    atomic.Uint64
	active atomic.Bool
}

// NewTimer creates a stopped timer bound to the loop
func (l *Loop) NewTimer(fn func()) *Timer {
	return &Timer{loop: l, fn: fn}
}

// Start arms the timer, replacing any pending expiry
func (t *Timer) Start(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.t != nil {
		t.t.Stop()
	}
	gen := t.gen.Add(1)
	t.active.Store(true)
	t.t = time.AfterFunc(d, func() {
		t.loop.Post(func() {
			// Stop/Start after the fire was posted cancels it
			if t.gen.Load() != gen {
				return
			}
			t.active.Store(false)
			t.fn()
		})
	})
}

// Stop cancels a pending expiry, including one already queued on the loop
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen.Add(1)
	t.active.Store(false)
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
}

// Active reports whether the timer is armed and has not fired
func (t *Timer) Active() bool {
	return t.active.Load()
}
