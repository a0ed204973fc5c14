package vblank

import (
	"errors"
	"sync"
	"time"
)

// ErrDisabled is returned by Get while vblank is switched off.
var ErrDisabled = errors.New("vblank: disabled")

// Event reports a completed vblank to a waiter.
type Event struct {
	// Sequence is the frame counter value at delivery.
	Sequence uint64

	// Timestamp is the time of the vblank the event completed on.
	Timestamp time.Time
}

// Counter is the frame counter of one output.
//
// While on, every Handle advances the count and completes armed events.
// Consumers that need vblanks to keep coming hold a reference with Get and
// drop it with Put.
//
// Thread safety: All methods are safe for concurrent use.
type Counter struct {
	mu      sync.Mutex
	enabled bool
	refs    int
	count   uint64
	time    time.Time
	armed   []chan<- Event
}

// NewCounter creates a counter that is off.
func NewCounter() *Counter {
	return &Counter{}
}

// On enables the counter. References may be taken again.
func (c *Counter) On() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = true
}

// Off disables the counter and completes every armed event with the last
// count, as no further vblank will deliver them.
func (c *Counter) Off(now time.Time) {
	c.mu.Lock()
	armed := c.armed
	c.armed = nil
	c.enabled = false
	c.refs -= len(armed)
	ev := Event{Sequence: c.count, Timestamp: now}
	c.mu.Unlock()

	for _, ch := range armed {
		deliver(ch, ev)
	}
}

// Enabled reports whether the counter is on.
func (c *Counter) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Get takes a vblank reference. It fails with ErrDisabled while the counter
// is off.
func (c *Counter) Get() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return ErrDisabled
	}
	c.refs++
	return nil
}

// Put drops a reference taken with Get.
func (c *Counter) Put() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refs == 0 {
		panic("vblank: reference count underflow")
	}
	c.refs--
}

// Refs returns the number of references held.
func (c *Counter) Refs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs
}

// Count returns the frame counter.
func (c *Counter) Count() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Timestamp returns the time of the last handled vblank.
func (c *Counter) Timestamp() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}

// Handle records a vblank at ts that completes overrun frames. Armed events
// are delivered and their references dropped. It returns false, changing
// nothing, if the counter is off.
func (c *Counter) Handle(ts time.Time, overrun uint64) bool {
	c.mu.Lock()
	if !c.enabled {
		c.mu.Unlock()
		return false
	}
	c.count += overrun
	c.time = ts
	armed := c.armed
	c.armed = nil
	c.refs -= len(armed)
	ev := Event{Sequence: c.count, Timestamp: ts}
	c.mu.Unlock()

	for _, ch := range armed {
		deliver(ch, ev)
	}
	return true
}

// Arm queues ch to receive an Event at the next vblank. The caller must hold
// a reference from Get; it is handed over and dropped at delivery.
func (c *Counter) Arm(ch chan<- Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = append(c.armed, ch)
}

// Send delivers an Event for the current frame right away.
func (c *Counter) Send(ch chan<- Event, now time.Time) {
	c.mu.Lock()
	ev := Event{Sequence: c.count, Timestamp: now}
	c.mu.Unlock()
	deliver(ch, ev)
}

// deliver never blocks the vblank path; a receiver without buffer space loses
// the event.
func deliver(ch chan<- Event, ev Event) {
	select {
	case ch <- ev:
	default:
		slogger().Warn("vblank: event dropped, receiver not ready",
			"sequence", ev.Sequence)
	}
}
