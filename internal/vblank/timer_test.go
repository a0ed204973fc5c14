package vblank

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// waitArmed blocks until the timer goroutine is waiting on the fake clock,
// which means the previous callback has returned.
func waitArmed(t *testing.T, fc *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fc.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("timer never re-armed: %v", err)
	}
}

// recorder collects callback overruns.
type recorder struct {
	mu       sync.Mutex
	overruns []uint64
}

func (r *recorder) fire(overrun uint64) {
	r.mu.Lock()
	r.overruns = append(r.overruns, overrun)
	r.mu.Unlock()
}

func (r *recorder) frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n uint64
	for _, o := range r.overruns {
		n += o
	}
	return n
}

func (r *recorder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.overruns)
}

func TestTimer_Forward(t *testing.T) {
	const p = 16 * time.Millisecond
	tests := []struct {
		name        string
		now         time.Duration
		wantOverrun uint64
		wantExpires time.Duration
	}{
		{"early", 10 * time.Millisecond, 0, p},
		{"exactly on time", p, 1, 2 * p},
		{"late within period", p + 5*time.Millisecond, 1, 2 * p},
		{"exactly two periods", 2 * p, 2, 3 * p},
		{"several periods late", 5*p + time.Millisecond, 5, 6 * p},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm := &Timer{period: p, expires: epoch.Add(p)}
			got := tm.forward(epoch.Add(tt.now))
			if got != tt.wantOverrun {
				t.Errorf("forward() = %d, want %d", got, tt.wantOverrun)
			}
			if want := epoch.Add(tt.wantExpires); !tm.expires.Equal(want) {
				t.Errorf("expires = %v, want %v", tm.expires.Sub(epoch), tt.wantExpires)
			}
		})
	}
}

func TestTimer_StartInvalidPeriod(t *testing.T) {
	tm := NewTimer(clockwork.NewFakeClockAt(epoch), func(uint64) {})
	for _, p := range []time.Duration{0, -time.Millisecond} {
		if err := tm.Start(p); !errors.Is(err, ErrInvalidPeriod) {
			t.Errorf("Start(%v) error = %v, want ErrInvalidPeriod", p, err)
		}
	}
	if tm.Active() {
		t.Error("timer active after failed Start")
	}
}

func TestTimer_FiresEveryPeriod(t *testing.T) {
	const p = 16 * time.Millisecond
	fc := clockwork.NewFakeClockAt(epoch)
	var rec recorder
	tm := NewTimer(fc, rec.fire)

	if err := tm.Start(p); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tm.Cancel()
	waitArmed(t, fc)

	for i := 1; i <= 10; i++ {
		fc.Advance(p)
		waitArmed(t, fc)
		if got := rec.calls(); got != i {
			t.Fatalf("after %d periods: %d calls", i, got)
		}
	}
	if rec.frames() != 10 {
		t.Errorf("frames = %d, want 10", rec.frames())
	}
	if want := epoch.Add(11 * p); !tm.Expires().Equal(want) {
		t.Errorf("Expires() = %v, want %v", tm.Expires(), want)
	}
	if tm.Period() != p {
		t.Errorf("Period() = %v, want %v", tm.Period(), p)
	}
}

// TestTimer_CountMatchesElapsed advances the clock in steps unrelated to the
// period and checks that exactly floor(T/P) frames are counted.
func TestTimer_CountMatchesElapsed(t *testing.T) {
	tests := []struct {
		name   string
		period time.Duration
		step   time.Duration
		total  time.Duration
	}{
		{"16ms in 7ms steps", 16 * time.Millisecond, 7 * time.Millisecond, time.Second},
		{"60Hz in 1ms steps", 16666667 * time.Nanosecond, time.Millisecond, 500 * time.Millisecond},
		{"steps longer than period", 10 * time.Millisecond, 35 * time.Millisecond, 700 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := clockwork.NewFakeClockAt(epoch)
			var rec recorder
			tm := NewTimer(fc, rec.fire)
			if err := tm.Start(tt.period); err != nil {
				t.Fatalf("Start: %v", err)
			}
			defer tm.Cancel()
			waitArmed(t, fc)

			for elapsed := time.Duration(0); elapsed+tt.step <= tt.total; elapsed += tt.step {
				fc.Advance(tt.step)
				waitArmed(t, fc)
			}
			elapsed := fc.Since(epoch)
			want := uint64(elapsed / tt.period)
			if got := rec.frames(); got != want {
				t.Errorf("frames = %d, want %d (elapsed %v)", got, want, elapsed)
			}

			// The deadline stays on the period grid.
			if off := tm.Expires().Sub(epoch) % tt.period; off != 0 {
				t.Errorf("deadline drifted by %v", off)
			}
		})
	}
}

func TestTimer_Overrun(t *testing.T) {
	const p = 16 * time.Millisecond
	fc := clockwork.NewFakeClockAt(epoch)
	var rec recorder
	tm := NewTimer(fc, rec.fire)
	if err := tm.Start(p); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tm.Cancel()
	waitArmed(t, fc)

	fc.Advance(5*p + p/2)
	waitArmed(t, fc)

	rec.mu.Lock()
	got := append([]uint64(nil), rec.overruns...)
	rec.mu.Unlock()
	if len(got) != 1 || got[0] != 5 {
		t.Errorf("overruns = %v, want [5]", got)
	}
	if want := epoch.Add(6 * p); !tm.Expires().Equal(want) {
		t.Errorf("Expires() = %v, want %v", tm.Expires().Sub(epoch), 6*p)
	}
}

func TestTimer_Cancel(t *testing.T) {
	const p = 16 * time.Millisecond
	fc := clockwork.NewFakeClockAt(epoch)
	var calls atomic.Int32
	tm := NewTimer(fc, func(uint64) { calls.Add(1) })

	if err := tm.Start(p); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitArmed(t, fc)
	if !tm.Active() {
		t.Fatal("timer not active after Start")
	}

	tm.Cancel()
	if tm.Active() {
		t.Error("timer active after Cancel")
	}
	fc.Advance(10 * p)
	if calls.Load() != 0 {
		t.Errorf("callback ran %d times after Cancel", calls.Load())
	}

	// Cancel of an inactive timer is a no-op.
	tm.Cancel()
}

func TestTimer_CancelWaitsForCallback(t *testing.T) {
	const p = 16 * time.Millisecond
	fc := clockwork.NewFakeClockAt(epoch)
	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	tm := NewTimer(fc, func(uint64) {
		close(entered)
		<-release
		finished.Store(true)
	})
	if err := tm.Start(p); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitArmed(t, fc)
	fc.Advance(p)
	<-entered

	cancelled := make(chan struct{})
	go func() {
		tm.Cancel()
		close(cancelled)
	}()

	select {
	case <-cancelled:
		t.Fatal("Cancel returned while callback was running")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-cancelled
	if !finished.Load() {
		t.Error("callback did not finish before Cancel returned")
	}
}

func TestTimer_Restart(t *testing.T) {
	const p = 16 * time.Millisecond
	fc := clockwork.NewFakeClockAt(epoch)
	var rec recorder
	tm := NewTimer(fc, rec.fire)

	if err := tm.Start(p); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitArmed(t, fc)
	fc.Advance(p / 2)

	// Restarting re-bases the deadline on the current time.
	if err := tm.Start(2 * p); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tm.Cancel()
	waitArmed(t, fc)
	if want := epoch.Add(p/2 + 2*p); !tm.Expires().Equal(want) {
		t.Errorf("Expires() = %v, want %v", tm.Expires().Sub(epoch), p/2+2*p)
	}
	fc.Advance(p)
	if rec.calls() != 0 {
		t.Errorf("calls = %d before new deadline", rec.calls())
	}
	fc.Advance(p)
	waitArmed(t, fc)
	if rec.calls() != 1 {
		t.Errorf("calls = %d, want 1", rec.calls())
	}
}

func TestTimer_RealClock(t *testing.T) {
	var calls atomic.Int32
	tm := NewTimer(nil, func(uint64) { calls.Add(1) })
	if err := tm.Start(time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	tm.Cancel()
	if calls.Load() < 3 {
		t.Errorf("calls = %d, want at least 3", calls.Load())
	}
}
