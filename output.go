package vkms

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/gogpu/vkms/framebuffer"
	"github.com/gogpu/vkms/internal/scratch"
	"github.com/gogpu/vkms/internal/vblank"
	"github.com/gogpu/vkms/internal/workqueue"
)

// OutputState is the per-commit state of the output.
//
// A state is created for every commit by duplicating the current one,
// validated, published as current, and destroyed once a later commit has
// replaced it and its composition work has finished.
type OutputState struct {
	Active bool
	Mode   Mode

	// activePlanes lists the visible plane states bottom to top. It is built
	// once by checkState and read-only afterwards.
	activePlanes []*PlaneState
	charged      int

	activeWriteback *WritebackJob

	// Guarded by Output.composerMu.
	frameStart uint64
	frameEnd   uint64
	crcPending bool
	wbPending  bool

	work *workqueue.Work
}

// ActivePlanes returns the number of planes composed for this state.
func (s *OutputState) ActivePlanes() int {
	return len(s.activePlanes)
}

// primary returns the composer of the bottom-most active plane, whatever its
// type. Its buffer sets the size of the composed frame. It is nil when no
// plane is visible.
func (s *OutputState) primary() *Composer {
	if len(s.activePlanes) == 0 {
		return nil
	}
	return s.activePlanes[0].composer
}

// framebuffers returns the distinct framebuffers scanned out by s.
func (s *OutputState) framebuffers() []*framebuffer.Framebuffer {
	fbs := make([]*framebuffer.Framebuffer, 0, len(s.activePlanes))
	for _, ps := range s.activePlanes {
		fb := ps.composer.FB
		seen := false
		for _, f := range fbs {
			if f == fb {
				seen = true
				break
			}
		}
		if !seen {
			fbs = append(fbs, fb)
		}
	}
	return fbs
}

// OutputStatus is a snapshot of the output for callers.
type OutputStatus struct {
	Active           bool
	Mode             Mode
	Period           time.Duration
	ActivePlanes     int
	ComposerEnabled  bool
	WritebackPending bool
	Frame            uint64

	// LastVblank is the time of the last vblank handled since the output
	// was first enabled.
	LastVblank time.Time
}

// Output is the controller of the virtual display: it owns the scanout timer,
// the composition work queue and the current output state.
//
// Thread safety: All exported methods are safe for concurrent use.
type Output struct {
	clock     clockwork.Clock
	counter   *vblank.Counter
	timer     *vblank.Timer
	queue     *workqueue.Queue
	budget    *scratch.Budget
	pool      *scratch.Pool
	writeback *Writeback
	period    time.Duration // override, 0 derives it from the mode

	// mu guards the composer flag and the current state pointer. The timer
	// callback holds it while scheduling composition.
	mu              sync.Mutex
	composerEnabled bool
	composerRef     bool
	state           *OutputState

	// composerMu guards the frame range and pending flags of every state.
	composerMu sync.Mutex

	// usersMu serializes composer users: the CRC source and writeback jobs.
	usersMu sync.Mutex
	crcOn   bool
	wbJobs  int

	crc    crcQueue
	closed atomic.Bool
}

func newOutput(opts options, budget *scratch.Budget) *Output {
	o := &Output{
		clock:   opts.clock,
		counter: vblank.NewCounter(),
		queue:   workqueue.New("vkms-composer"),
		budget:  budget,
		pool:    scratch.NewPool(opts.poolSize, budget),
		period:  opts.period,
	}
	o.timer = vblank.NewTimer(o.clock, o.simulateVblank)
	o.crc.init(opts.crcCapacity)
	return o
}

// resetState returns a fresh inactive state with an empty plane list.
func (o *Output) resetState(mode Mode) *OutputState {
	s := &OutputState{Mode: mode, activePlanes: []*PlaneState{}}
	s.work = workqueue.NewWork(func() { o.composerWorker(s) })
	return s
}

// duplicateState copies the configuration of old into a new state with its
// own work item. The plane list, writeback job and frame range start empty.
func (o *Output) duplicateState(old *OutputState) *OutputState {
	s := &OutputState{Active: old.Active, Mode: old.Mode}
	s.work = workqueue.NewWork(func() { o.composerWorker(s) })
	return s
}

// checkState builds the active plane list from the visible plane states in
// z-order. It does nothing if the list already exists.
func (o *Output) checkState(s *OutputState, planes []*PlaneState) error {
	if s.activePlanes != nil {
		return nil
	}

	n := 0
	for _, ps := range planes {
		if ps.visible {
			n++
		}
	}
	size := n * scratch.PointerSize
	if err := o.budget.Reserve(size); err != nil {
		return fmt.Errorf("%w: active plane list: %w", ErrNoMemory, err)
	}
	s.charged = size

	s.activePlanes = make([]*PlaneState, 0, n)
	for _, ps := range planes {
		if ps.visible {
			s.activePlanes = append(s.activePlanes, ps)
		}
	}
	return nil
}

// destroyState releases s. Its work must have finished: destroying a state
// that composition may still touch is a bug in the caller.
func (o *Output) destroyState(s *OutputState) {
	if s.work.Busy() {
		panic("vkms: destroying output state with outstanding composition work")
	}

	o.composerMu.Lock()
	job := s.activeWriteback
	pending := s.wbPending
	s.wbPending = false
	o.composerMu.Unlock()
	if pending && job != nil {
		o.writeback.signalCompletion(job, ErrWritebackAbandoned)
	}

	o.budget.Release(s.charged)
	s.charged = 0
	s.activePlanes = nil
	s.activeWriteback = nil
}

// periodFor returns the vblank period used for mode.
func (o *Output) periodFor(m Mode) time.Duration {
	if o.period > 0 {
		return o.period
	}
	return m.Period()
}

// setComposer enables or disables composition on vblank. While enabled the
// output holds a vblank reference, taken when the output is on. The caller
// holds usersMu.
func (o *Output) setComposer(enabled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.composerEnabled == enabled {
		return
	}
	o.composerEnabled = enabled
	switch {
	case enabled:
		o.composerRef = o.counter.Get() == nil
	case o.composerRef:
		o.counter.Put()
		o.composerRef = false
	}
}

// updateComposer enables the composer while any user needs it. The caller
// holds usersMu.
func (o *Output) updateComposer() {
	o.setComposer(o.crcOn || o.wbJobs > 0)
}

func (o *Output) writebackStarted() {
	o.usersMu.Lock()
	defer o.usersMu.Unlock()
	o.wbJobs++
	o.updateComposer()
}

func (o *Output) writebackDone() {
	o.usersMu.Lock()
	defer o.usersMu.Unlock()
	o.wbJobs--
	o.updateComposer()
}

// atomicEnable turns vblank on and starts the scanout timer for mode.
func (o *Output) atomicEnable(mode Mode) error {
	o.counter.On()

	// Composition enabled while the output was off could not take a vblank
	// reference.
	o.mu.Lock()
	if o.composerEnabled && !o.composerRef && o.counter.Get() == nil {
		o.composerRef = true
	}
	o.mu.Unlock()

	period := o.periodFor(mode)
	if err := o.timer.Start(period); err != nil {
		return fmt.Errorf("vkms: start scanout timer: %w", err)
	}
	Logger().Info("vkms: output enabled", "mode", mode.String(), "period", period)
	return nil
}

// atomicDisable stops the scanout timer. Queued composition still runs.
func (o *Output) atomicDisable() {
	o.timer.Cancel()
	o.counter.Off(o.clock.Now())
	Logger().Info("vkms: output disabled", "frames", o.counter.Count())
}

// atomicBegin locks out the timer callback while a commit publishes state.
func (o *Output) atomicBegin() {
	o.mu.Lock()
}

// atomicFlush schedules the commit's vblank event and publishes s. It
// releases the lock taken by atomicBegin.
func (o *Output) atomicFlush(s *OutputState, event chan<- VblankEvent) {
	if event != nil {
		if s.Active && o.counter.Get() == nil {
			o.counter.Arm(event)
		} else {
			o.counter.Send(event, o.clock.Now())
		}
	}
	o.state = s
	o.mu.Unlock()
}

// State returns a snapshot of the current output state.
func (o *Output) State() OutputStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := OutputStatus{
		ComposerEnabled: o.composerEnabled,
		Frame:           o.counter.Count(),
		LastVblank:      o.counter.Timestamp(),
	}
	if s := o.state; s != nil {
		st.Active = s.Active
		st.Mode = s.Mode
		st.Period = o.periodFor(s.Mode)
		st.ActivePlanes = len(s.activePlanes)
		o.composerMu.Lock()
		st.WritebackPending = s.wbPending
		o.composerMu.Unlock()
	}
	return st
}

// Period returns the vblank period of the current mode.
func (o *Output) Period() time.Duration {
	return o.State().Period
}

// FrameCount returns the number of vblanks since the device was created.
func (o *Output) FrameCount() uint64 {
	return o.counter.Count()
}

// ComposerEnabled reports whether vblanks schedule composition.
func (o *Output) ComposerEnabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.composerEnabled
}
