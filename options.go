package vkms

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Option configures a Device during creation.
// Use functional options to customize Device behavior.
//
// Example:
//
//	// Default 640x480 output with overlay, cursor and writeback
//	dev, err := vkms.NewDevice()
//
//	// 1080p output without writeback, at most 64 MiB of pipeline memory
//	dev, err := vkms.NewDevice(
//	    vkms.WithMode(vkms.StandardModes[5]),
//	    vkms.WithWriteback(false),
//	    vkms.WithMemoryLimit(64<<20),
//	)
type Option func(*options)

// options holds optional configuration for Device creation.
type options struct {
	mode        Mode
	period      time.Duration
	clock       clockwork.Clock
	overlay     bool
	cursor      bool
	writeback   bool
	memoryLimit int64
	crcCapacity int
	poolSize    int
}

// defaultOptions returns the default device options.
func defaultOptions() options {
	// A zero period is derived from the mode, a nil clock is the real clock
	// and a zero memory limit is unlimited.
	return options{
		mode:        DefaultMode,
		overlay:     true,
		cursor:      true,
		writeback:   true,
		crcCapacity: DefaultCRCCapacity,
		poolSize:    2,
	}
}

// WithMode sets the initial display mode. Commits may change it later.
func WithMode(m Mode) Option {
	return func(o *options) {
		o.mode = m
	}
}

// WithPeriod overrides the vblank period derived from the mode's pixel clock.
// Use it to run the pipeline at an arbitrary refresh rate in tests.
func WithPeriod(d time.Duration) Option {
	return func(o *options) {
		o.period = d
	}
}

// WithClock sets the clock that drives the vblank timer and timestamps.
//
// Example:
//
//	fc := clockwork.NewFakeClock()
//	dev, _ := vkms.NewDevice(vkms.WithClock(fc))
//	fc.Advance(dev.Output().Period())
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithOverlay enables or disables the overlay plane.
func WithOverlay(enabled bool) Option {
	return func(o *options) {
		o.overlay = enabled
	}
}

// WithCursor enables or disables the cursor plane.
func WithCursor(enabled bool) Option {
	return func(o *options) {
		o.cursor = enabled
	}
}

// WithWriteback enables or disables the writeback connector.
func WithWriteback(enabled bool) Option {
	return func(o *options) {
		o.writeback = enabled
	}
}

// WithMemoryLimit caps the bytes the pipeline may allocate for active plane
// lists and scratch output buffers. Allocations beyond the limit fail with
// ErrNoMemory. Zero means unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithCRCCapacity sets how many CRC entries are kept for readers before the
// oldest are dropped.
func WithCRCCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.crcCapacity = n
		}
	}
}

// WithPoolSize sets how many scratch output buffers of each size are kept
// for reuse between frames. Zero keeps every returned buffer.
func WithPoolSize(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.poolSize = n
		}
	}
}
