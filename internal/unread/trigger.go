package unread

import (
	"sync"
	"time"
)

// Trigger is a coalescing invalidation primitive: any number of Invalidate
// calls within the window collapse into exactly one run of fn once the
// window elapses. It prevents read amplification when events arrive in
// bursts. Safe for concurrent use; fn runs on a timer goroutine.
type Trigger struct {
	window time.Duration
	fn     func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewTrigger creates a trigger. fn must be safe to call from a timer
// goroutine.
func NewTrigger(window time.Duration, fn func()) *Trigger {
	if window <= 0 {
		window = 500 * time.Millisecond
	}
	return &Trigger{window: window, fn: fn}
}

// Invalidate schedules a run. If one is already pending, the call is
// absorbed into it.
func (t *Trigger) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.timer != nil {
		return
	}
	t.timer = time.AfterFunc(t.window, t.fire)
}

func (t *Trigger) fire() {
	t.mu.Lock()
	t.timer = nil
	stopped := t.stopped
	t.mu.Unlock()
	if !stopped {
		t.fn()
	}
}

// Stop cancels any pending run and ignores further invalidations.
// Called on session teardown.
func (t *Trigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
