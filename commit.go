package vkms

import (
	"fmt"
)

// CommitRequest describes the next configuration of the device.
//
// Active and Mode describe the whole output: a request with Active unset
// turns the output off. A zero Mode keeps the current mode. Planes lists only
// the planes to change; the others keep their configuration.
type CommitRequest struct {
	Active bool
	Mode   Mode
	Planes map[*Plane]PlaneConfig

	// Writeback captures the first frame composed for this commit.
	Writeback *WritebackJob

	// Event receives one VblankEvent once the commit has reached the screen:
	// at the next vblank, or right away when the output is off. Delivery never
	// blocks, so the channel should be buffered.
	Event chan<- VblankEvent
}

// Commit validates req and, if it passes, makes it the current configuration.
// A rejected request changes nothing.
//
// Commits are serialized. Commit returns after the new state is current and
// the composition work of the replaced state has finished.
func (d *Device) Commit(req *CommitRequest) error {
	d.commitMu.Lock()
	defer d.commitMu.Unlock()

	if d.closed {
		return ErrClosed
	}
	o := d.output

	// Duplicate.
	oldState := o.state
	newState := o.duplicateState(oldState)
	newState.Active = req.Active
	if req.Mode != (Mode{}) {
		newState.Mode = req.Mode
	}
	oldPlanes := make([]*PlaneState, len(d.planes))
	newPlanes := make([]*PlaneState, len(d.planes))
	for i, p := range d.planes {
		oldPlanes[i] = p.state
		newPlanes[i] = p.duplicateState(p.state)
	}

	if err := d.atomicCheck(req, newState, newPlanes); err != nil {
		d.destroyStates(newState, newPlanes)
		Logger().Debug("vkms: commit rejected", "err", err)
		return err
	}

	// Swap.
	for i, p := range d.planes {
		p.state = newPlanes[i]
	}

	// Modeset disables, then enables.
	modeChanged := oldState.Mode != newState.Mode
	if oldState.Active && (!newState.Active || modeChanged) {
		o.atomicDisable()
	}
	if newState.Active && (!oldState.Active || modeChanged) {
		if err := o.atomicEnable(newState.Mode); err != nil {
			// Unreachable for a validated mode.
			Logger().Error("vkms: enable failed", "err", err)
		}
	}

	if req.Writeback != nil {
		d.writeback.atomicCommit(req.Writeback, newState)
	}

	o.atomicBegin()
	for i, p := range d.planes {
		p.atomicUpdate(newPlanes[i])
	}
	o.atomicFlush(newState, req.Event)

	// Clean up once composition no longer reads the old state.
	o.queue.Flush(oldState.work)
	d.destroyStates(oldState, oldPlanes)
	return nil
}

// atomicCheck applies the plane changes of req and validates the new states.
func (d *Device) atomicCheck(req *CommitRequest, s *OutputState, planes []*PlaneState) error {
	for p, cfg := range req.Planes {
		if p == nil || p.dev != d {
			return fmt.Errorf("%w: plane does not belong to this device", ErrInvalidPlane)
		}
		planes[p.zpos].setConfig(cfg)
	}

	if s.Active {
		if err := s.Mode.Validate(); err != nil {
			return err
		}
	}
	for i, p := range d.planes {
		if err := p.atomicCheck(planes[i], s); err != nil {
			return err
		}
	}
	if req.Writeback != nil {
		if err := d.writeback.atomicCheck(req.Writeback, s, planes); err != nil {
			return err
		}
	}
	return d.output.checkState(s, planes)
}

func (d *Device) destroyStates(s *OutputState, planes []*PlaneState) {
	d.output.destroyState(s)
	for i, p := range d.planes {
		p.destroyState(planes[i])
	}
}
