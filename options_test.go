package vkms

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.mode != DefaultMode {
		t.Errorf("mode = %v, want %v", o.mode, DefaultMode)
	}
	if !o.overlay || !o.cursor || !o.writeback {
		t.Errorf("planes = overlay %v cursor %v writeback %v, want all enabled", o.overlay, o.cursor, o.writeback)
	}
	if o.crcCapacity != DefaultCRCCapacity {
		t.Errorf("crcCapacity = %d, want %d", o.crcCapacity, DefaultCRCCapacity)
	}
	if o.clock != nil || o.period != 0 || o.memoryLimit != 0 {
		t.Error("clock, period and memory limit should be unset by default")
	}
}

func TestOptions(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tests := []struct {
		name  string
		opt   Option
		check func(o options) bool
	}{
		{"WithMode", WithMode(StandardModes[5]), func(o options) bool { return o.mode == StandardModes[5] }},
		{"WithPeriod", WithPeriod(time.Millisecond), func(o options) bool { return o.period == time.Millisecond }},
		{"WithClock", WithClock(fc), func(o options) bool { return o.clock == fc }},
		{"WithOverlay", WithOverlay(false), func(o options) bool { return !o.overlay }},
		{"WithCursor", WithCursor(false), func(o options) bool { return !o.cursor }},
		{"WithWriteback", WithWriteback(false), func(o options) bool { return !o.writeback }},
		{"WithMemoryLimit", WithMemoryLimit(1 << 20), func(o options) bool { return o.memoryLimit == 1<<20 }},
		{"WithCRCCapacity", WithCRCCapacity(8), func(o options) bool { return o.crcCapacity == 8 }},
		{"WithCRCCapacity ignores zero", WithCRCCapacity(0), func(o options) bool { return o.crcCapacity == DefaultCRCCapacity }},
		{"WithPoolSize", WithPoolSize(4), func(o options) bool { return o.poolSize == 4 }},
		{"WithPoolSize ignores negative", WithPoolSize(-1), func(o options) bool { return o.poolSize == 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := defaultOptions()
			tt.opt(&o)
			if !tt.check(o) {
				t.Errorf("%s not applied: %+v", tt.name, o)
			}
		})
	}
}
