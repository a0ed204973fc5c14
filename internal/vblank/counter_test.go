package vblank

import (
	"errors"
	"testing"
	"time"
)

func TestCounter_GetPut(t *testing.T) {
	c := NewCounter()

	if err := c.Get(); !errors.Is(err, ErrDisabled) {
		t.Fatalf("Get while off error = %v, want ErrDisabled", err)
	}
	if c.Refs() != 0 {
		t.Errorf("Refs() = %d after failed Get", c.Refs())
	}

	c.On()
	if !c.Enabled() {
		t.Fatal("Enabled() = false after On")
	}
	for i := 0; i < 3; i++ {
		if err := c.Get(); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	c.Put()
	if c.Refs() != 2 {
		t.Errorf("Refs() = %d, want 2", c.Refs())
	}
}

func TestCounter_PutUnderflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	NewCounter().Put()
}

func TestCounter_Handle(t *testing.T) {
	c := NewCounter()
	ts := epoch.Add(16 * time.Millisecond)

	if c.Handle(ts, 1) {
		t.Error("Handle while off returned true")
	}
	if c.Count() != 0 {
		t.Errorf("Count() = %d after Handle while off", c.Count())
	}

	c.On()
	tests := []struct {
		overrun uint64
		want    uint64
	}{
		{1, 1},
		{1, 2},
		{3, 5},
	}
	for i, tt := range tests {
		ts = ts.Add(time.Duration(tt.overrun) * 16 * time.Millisecond)
		if !c.Handle(ts, tt.overrun) {
			t.Fatalf("step %d: Handle returned false", i)
		}
		if c.Count() != tt.want {
			t.Errorf("step %d: Count() = %d, want %d", i, c.Count(), tt.want)
		}
		if !c.Timestamp().Equal(ts) {
			t.Errorf("step %d: Timestamp() = %v, want %v", i, c.Timestamp(), ts)
		}
	}
}

func TestCounter_ArmDeliversOnNextVblank(t *testing.T) {
	c := NewCounter()
	c.On()
	ch := make(chan Event, 1)

	if err := c.Get(); err != nil {
		t.Fatalf("Get: %v", err)
	}
	c.Arm(ch)

	select {
	case ev := <-ch:
		t.Fatalf("event delivered before vblank: %+v", ev)
	default:
	}

	ts := epoch.Add(time.Second)
	c.Handle(ts, 2)
	select {
	case ev := <-ch:
		if ev.Sequence != 2 || !ev.Timestamp.Equal(ts) {
			t.Errorf("event = %+v, want sequence 2 at %v", ev, ts)
		}
	default:
		t.Fatal("event not delivered")
	}
	if c.Refs() != 0 {
		t.Errorf("Refs() = %d, armed reference not dropped", c.Refs())
	}

	// Delivered once only.
	c.Handle(ts.Add(time.Second), 1)
	if len(ch) != 0 {
		t.Error("event delivered twice")
	}
}

func TestCounter_Send(t *testing.T) {
	c := NewCounter()
	c.On()
	c.Handle(epoch, 7)

	ch := make(chan Event, 1)
	now := epoch.Add(time.Millisecond)
	c.Send(ch, now)
	ev := <-ch
	if ev.Sequence != 7 || !ev.Timestamp.Equal(now) {
		t.Errorf("event = %+v", ev)
	}

	// A full receiver drops the event instead of blocking.
	c.Send(ch, now)
	c.Send(ch, now)
	if len(ch) != 1 {
		t.Errorf("len(ch) = %d, want 1", len(ch))
	}
}

func TestCounter_OffCompletesArmed(t *testing.T) {
	c := NewCounter()
	c.On()
	c.Handle(epoch, 4)

	ch := make(chan Event, 1)
	if err := c.Get(); err != nil {
		t.Fatalf("Get: %v", err)
	}
	c.Arm(ch)

	now := epoch.Add(time.Second)
	c.Off(now)
	select {
	case ev := <-ch:
		if ev.Sequence != 4 {
			t.Errorf("Sequence = %d, want 4", ev.Sequence)
		}
	default:
		t.Fatal("armed event not completed by Off")
	}
	if c.Enabled() || c.Refs() != 0 {
		t.Errorf("after Off: Enabled() = %v, Refs() = %d", c.Enabled(), c.Refs())
	}
	if err := c.Get(); !errors.Is(err, ErrDisabled) {
		t.Errorf("Get after Off error = %v", err)
	}
}
