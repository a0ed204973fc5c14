package vkms

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// DefaultCRCCapacity is the number of CRC entries kept for readers before
// the oldest are dropped.
const DefaultCRCCapacity = 128

// CRCSourceAuto is the only CRC source: the CRC of every composed frame.
const CRCSourceAuto = "auto"

var crcSources = []string{CRCSourceAuto}

// CRCEntry is the CRC of one frame.
type CRCEntry struct {
	Frame uint64
	CRC   uint32
}

func (e CRCEntry) String() string {
	return fmt.Sprintf("%d: %08x", e.Frame, e.CRC)
}

// crcQueue is the bounded FIFO of CRC entries of the active source.
type crcQueue struct {
	mu       sync.Mutex
	source   string
	entries  []CRCEntry
	capacity int
	dropped  uint64
	notify   chan struct{}
	closed   bool
}

func (q *crcQueue) init(capacity int) {
	q.capacity = capacity
	q.notify = make(chan struct{})
}

// wake releases every blocked reader. The caller holds q.mu.
func (q *crcQueue) wake() {
	close(q.notify)
	q.notify = make(chan struct{})
}

// CRCSources lists the CRC source names SetCRCSource accepts.
func (o *Output) CRCSources() []string {
	return slices.Clone(crcSources)
}

// parseCRCSource maps a source name to whether it enables composition. The
// empty name turns CRC generation off.
func parseCRCSource(name string) (bool, error) {
	switch name {
	case CRCSourceAuto:
		return true, nil
	case "":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidCRCSource, name)
	}
}

// VerifyCRCSource checks a source name and returns the number of values per
// entry it produces.
func (o *Output) VerifyCRCSource(name string) (int, error) {
	if _, err := parseCRCSource(name); err != nil {
		return 0, err
	}
	return 1, nil
}

// SetCRCSource selects the CRC source. "auto" enables composition on every
// vblank and "" disables it. Any other name fails with ErrInvalidCRCSource
// and changes nothing. Entries of the previous source are discarded.
func (o *Output) SetCRCSource(name string) error {
	enabled, err := parseCRCSource(name)
	if err != nil {
		return err
	}
	if o.closed.Load() {
		return ErrClosed
	}

	o.usersMu.Lock()
	defer o.usersMu.Unlock()

	o.crc.mu.Lock()
	o.crc.source = name
	o.crc.entries = nil
	o.crc.mu.Unlock()

	o.crcOn = enabled
	o.updateComposer()

	Logger().Info("vkms: CRC source changed", "source", name)
	return nil
}

// CRCSource returns the active CRC source name, "" when off.
func (o *Output) CRCSource() string {
	o.crc.mu.Lock()
	defer o.crc.mu.Unlock()
	return o.crc.source
}

// addCRCEntry queues the CRC of frame. On overflow the oldest entry is
// dropped.
func (o *Output) addCRCEntry(frame uint64, crc uint32) {
	q := &o.crc
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.source == "" || q.closed {
		return
	}
	if len(q.entries) >= q.capacity {
		q.dropped++
		Logger().Warn("vkms: CRC queue full, dropping oldest entry",
			"frame", q.entries[0].Frame,
			"dropped", q.dropped)
		q.entries = slices.Delete(q.entries, 0, 1)
	}
	q.entries = append(q.entries, CRCEntry{Frame: frame, CRC: crc})
	q.wake()
}

// ReadCRC returns the oldest queued CRC entry, waiting for one if the queue
// is empty. It fails with the context error or with ErrClosed once the
// device is closed.
func (o *Output) ReadCRC(ctx context.Context) (CRCEntry, error) {
	q := &o.crc
	for {
		q.mu.Lock()
		if len(q.entries) > 0 {
			e := q.entries[0]
			q.entries = slices.Delete(q.entries, 0, 1)
			q.mu.Unlock()
			return e, nil
		}
		if q.closed {
			q.mu.Unlock()
			return CRCEntry{}, ErrClosed
		}
		notify := q.notify
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return CRCEntry{}, ctx.Err()
		case <-notify:
		}
	}
}

// DrainCRC removes and returns every queued CRC entry.
func (o *Output) DrainCRC() []CRCEntry {
	q := &o.crc
	q.mu.Lock()
	defer q.mu.Unlock()
	entries := q.entries
	q.entries = nil
	return entries
}

// DroppedCRCs returns how many entries were lost to queue overflow.
func (o *Output) DroppedCRCs() uint64 {
	o.crc.mu.Lock()
	defer o.crc.mu.Unlock()
	return o.crc.dropped
}

func (o *Output) closeCRC() {
	o.crc.mu.Lock()
	defer o.crc.mu.Unlock()
	o.crc.closed = true
	o.crc.wake()
}
