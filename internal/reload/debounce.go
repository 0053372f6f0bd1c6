// Package reload turns bursty change signals into registry reloads.
package reload

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// DefaultQuietWindow is how long the debouncer waits for silence before firing
const DefaultQuietWindow = 500 * time.Millisecond

// Debouncer coalesces bursts of Notify calls into a single invocation of fn.
// Every Notify restarts one pending timer; fn runs once the window passes without
// another Notify.
type Debouncer struct {
	clock  clock.WithDelayedExecution
	window time.Duration
	fn     func()

	mu      sync.Mutex
	timer   clock.Timer
	seq     uint64
	stopped bool
}

// NewDebouncer creates a Debouncer. A nil clock means the real clock.
func NewDebouncer(c clock.WithDelayedExecution, window time.Duration, fn func()) *Debouncer {
	if c == nil {
		c = clock.RealClock{}
	}
	if window <= 0 {
		window = DefaultQuietWindow
	}
	return &Debouncer{clock: c, window: window, fn: fn}
}

// Notify records a change signal and restarts the quiet window
func (d *Debouncer) Notify() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	// fire hops to its own goroutine so the timer callback never runs fn under a clock lock
	d.timer = d.clock.AfterFunc(d.window, func() { go d.fire(seq) })
}

// Pending reports whether a timer is armed
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels any pending invocation; later Notify calls are ignored
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	if d.stopped || seq != d.seq {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.fn()
}
