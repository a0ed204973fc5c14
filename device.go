package vkms

import (
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/gogpu/vkms/internal/scratch"
)

// Device is one virtual display pipeline: an output, its planes and the
// optional writeback connector.
//
// Thread safety: All methods are safe for concurrent use. Commits are
// serialized.
type Device struct {
	output    *Output
	planes    []*Plane
	writeback *Writeback
	budget    *scratch.Budget

	commitMu sync.Mutex
	closed   bool
}

// NewDevice creates a device with an inactive output. The first commit with
// Active set starts the scanout timer.
func NewDevice(opts ...Option) (*Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.mode.Validate(); err != nil {
		return nil, err
	}
	if o.period < 0 {
		return nil, fmt.Errorf("%w: negative period %v", ErrInvalidMode, o.period)
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}

	d := &Device{budget: scratch.NewBudget(o.memoryLimit)}
	d.output = newOutput(o, d.budget)

	d.planes = append(d.planes, newPlane(d, PlanePrimary, 0))
	if o.overlay {
		d.planes = append(d.planes, newPlane(d, PlaneOverlay, len(d.planes)))
	}
	if o.cursor {
		d.planes = append(d.planes, newPlane(d, PlaneCursor, len(d.planes)))
	}
	if o.writeback {
		d.writeback = newWriteback(d.output)
		d.output.writeback = d.writeback
	}

	d.output.state = d.output.resetState(o.mode)

	Logger().Debug("vkms: device created",
		"mode", o.mode.String(),
		"planes", len(d.planes),
		"writeback", o.writeback)
	return d, nil
}

// Close turns the output off, waits for outstanding composition and releases
// every state. Pending writeback jobs complete with ErrClosed and blocked CRC
// readers return ErrClosed. Close is idempotent.
func (d *Device) Close() error {
	d.commitMu.Lock()
	defer d.commitMu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	o := d.output
	o.closed.Store(true)
	o.timer.Cancel()
	o.counter.Off(o.clock.Now())

	o.mu.Lock()
	s := o.state
	o.state = nil
	o.mu.Unlock()

	o.queue.Flush(s.work)
	o.queue.Close()

	if d.writeback != nil {
		d.writeback.abandonAll(ErrClosed)
	}
	planes := make([]*PlaneState, len(d.planes))
	for i, p := range d.planes {
		planes[i] = p.state
		p.state = nil
	}
	d.destroyStates(s, planes)

	o.closeCRC()
	o.pool.Drain()

	Logger().Debug("vkms: device closed", "frames", o.counter.Count())
	return nil
}

// Output returns the output controller.
func (d *Device) Output() *Output {
	return d.output
}

// Planes returns every plane, bottom to top.
func (d *Device) Planes() []*Plane {
	return append([]*Plane(nil), d.planes...)
}

// Primary returns the primary plane.
func (d *Device) Primary() *Plane {
	return d.planes[0]
}

// Overlay returns the overlay plane, or nil if the device has none.
func (d *Device) Overlay() *Plane {
	return d.plane(PlaneOverlay)
}

// Cursor returns the cursor plane, or nil if the device has none.
func (d *Device) Cursor() *Plane {
	return d.plane(PlaneCursor)
}

func (d *Device) plane(t PlaneType) *Plane {
	for _, p := range d.planes {
		if p.typ == t {
			return p
		}
	}
	return nil
}

// Writeback returns the writeback connector, or nil if the device has none.
func (d *Device) Writeback() *Writeback {
	return d.writeback
}

// Mode returns the mode of the current output state.
func (d *Device) Mode() Mode {
	return d.output.State().Mode
}

// MemoryLimit returns the memory limit in bytes, 0 when unlimited.
func (d *Device) MemoryLimit() int64 {
	return d.budget.Limit()
}

// MemoryPeak returns the highest number of bytes charged at once since the
// device was created.
func (d *Device) MemoryPeak() int64 {
	return d.budget.Peak()
}

// MemoryUsed returns the bytes currently charged against the memory limit.
func (d *Device) MemoryUsed() int64 {
	return d.budget.Used()
}
