package vkms

import (
	"time"

	"github.com/gogpu/vkms/internal/vblank"
)

// VblankEvent is delivered on the event channel of a commit once the commit
// has reached the screen.
type VblankEvent = vblank.Event

// simulateVblank runs on the scanout timer goroutine once per firing. It
// advances the frame counter, extends the pending frame range of the current
// state and schedules its composition. It never blocks.
func (o *Output) simulateVblank(overrun uint64) {
	ts := o.timer.Expires().Add(-o.timer.Period())
	if !o.counter.Handle(ts, overrun) {
		Logger().Error("vkms: vblank on a disabled output", "overrun", overrun)
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.state
	if s == nil || !o.composerEnabled {
		return
	}

	frame := o.counter.Count()
	o.composerMu.Lock()
	if s.crcPending {
		// The worker has not consumed the previous range yet; grow it.
		Logger().Debug("vkms: composer falling behind",
			"frame_start", s.frameStart,
			"frame", frame)
	} else {
		s.frameStart = frame
	}
	s.frameEnd = frame
	s.crcPending = true
	o.composerMu.Unlock()

	if !o.queue.Enqueue(s.work) {
		Logger().Debug("vkms: composer work already queued", "frame", frame)
	}
}

// VblankTimestamp returns the time of the last vblank. The timer reports
// retroactively, so this is one period before the next deadline. While
// vblank is off it returns the current time.
func (o *Output) VblankTimestamp() time.Time {
	if !o.counter.Enabled() {
		return o.clock.Now()
	}
	return o.timer.Expires().Add(-o.timer.Period())
}
