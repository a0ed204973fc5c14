// Package vblank simulates the vertical blanking interrupt of a display.
//
// Timer is a periodic high-resolution timer that never drifts: every firing
// forwards its deadline by a whole number of periods past the current time,
// reporting how many periods elapsed. Counter is the frame counter that
// firings advance, together with the reference counting and event delivery
// that consumers use to wait for the next vblank.
package vblank

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrInvalidPeriod is returned when a timer is started with a non-positive period.
var ErrInvalidPeriod = errors.New("vblank: period must be positive")

// Timer fires a callback once per period on its own goroutine.
//
// Thread safety: Start, Cancel and the accessors are safe for concurrent use.
// Cancel must not be called from the callback.
type Timer struct {
	clock clockwork.Clock
	fn    func(overrun uint64)

	mu      sync.Mutex
	period  time.Duration
	expires time.Time
	stop    chan struct{}
	done    chan struct{}
}

// NewTimer creates an inactive timer that calls fn with the overrun count of
// every firing. A nil clock uses the real clock.
func NewTimer(clock clockwork.Clock, fn func(overrun uint64)) *Timer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Timer{clock: clock, fn: fn}
}

// Start arms the timer to fire every period, the first time one period from
// now. An active timer is cancelled and restarted.
func (t *Timer) Start(period time.Duration) error {
	if period <= 0 {
		return ErrInvalidPeriod
	}
	t.Cancel()

	t.mu.Lock()
	t.period = period
	t.expires = t.clock.Now().Add(period)
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	stop, done := t.stop, t.done
	t.mu.Unlock()

	go t.run(stop, done)
	return nil
}

// Cancel stops the timer and waits for a running callback to return. After
// Cancel returns the callback is not invoked again until the next Start.
func (t *Timer) Cancel() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Active reports whether the timer is armed.
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

// Expires returns the next deadline.
func (t *Timer) Expires() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expires
}

// Period returns the period the timer was last started with.
func (t *Timer) Period() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.period
}

func (t *Timer) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		timer := t.clock.NewTimer(t.clock.Until(t.Expires()))
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.Chan():
		}

		overrun := t.forward(t.clock.Now())
		if overrun == 0 {
			// Woke up early; wait for the rest of the period.
			continue
		}
		if overrun > 1 {
			slogger().Warn("vblank: timer overrun",
				"overrun", overrun,
				"period", t.Period())
		}
		t.fn(overrun)
	}
}

// forward moves the deadline past now by whole periods and returns how many
// periods were skipped. It returns 0 if now is before the deadline.
func (t *Timer) forward(now time.Time) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	delta := now.Sub(t.expires)
	if delta < 0 {
		return 0
	}
	overrun := 1 + uint64(delta/t.period)
	t.expires = t.expires.Add(time.Duration(overrun) * t.period)
	return overrun
}
