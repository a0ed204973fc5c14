package scratch

import (
	"errors"
	"sync"
	"testing"
)

func TestBudgetReserve(t *testing.T) {
	tests := []struct {
		name     string
		limit    int64
		reserves []int
		wantErr  []bool
		wantUsed int64
	}{
		{
			name:     "unlimited",
			limit:    0,
			reserves: []int{1 << 20, 1 << 20},
			wantErr:  []bool{false, false},
			wantUsed: 2 << 20,
		},
		{
			name:     "exact fit",
			limit:    100,
			reserves: []int{60, 40},
			wantErr:  []bool{false, false},
			wantUsed: 100,
		},
		{
			name:     "refused charge leaves usage unchanged",
			limit:    100,
			reserves: []int{60, 41, 40},
			wantErr:  []bool{false, true, false},
			wantUsed: 100,
		},
		{
			name:     "zero and negative are free",
			limit:    1,
			reserves: []int{0, -5, 1},
			wantErr:  []bool{false, false, false},
			wantUsed: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBudget(tt.limit)
			for i, n := range tt.reserves {
				err := b.Reserve(n)
				if (err != nil) != tt.wantErr[i] {
					t.Fatalf("Reserve(%d) error = %v, wantErr %v", n, err, tt.wantErr[i])
				}
				if err != nil && !errors.Is(err, ErrNoMemory) {
					t.Errorf("Reserve(%d) error = %v, want ErrNoMemory", n, err)
				}
			}
			if got := b.Used(); got != tt.wantUsed {
				t.Errorf("Used() = %d, want %d", got, tt.wantUsed)
			}
		})
	}
}

func TestBudgetRelease(t *testing.T) {
	b := NewBudget(10)
	if err := b.Reserve(10); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := b.Reserve(1); !errors.Is(err, ErrNoMemory) {
		t.Fatalf("Reserve over limit error = %v", err)
	}
	b.Release(4)
	if err := b.Reserve(4); err != nil {
		t.Errorf("Reserve after release: %v", err)
	}
	if b.Peak() != 10 {
		t.Errorf("Peak() = %d, want 10", b.Peak())
	}
}

func TestBudgetReleaseUnderflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on over-release")
		}
	}()
	b := NewBudget(0)
	b.Release(1)
}

func TestBudgetNil(t *testing.T) {
	var b *Budget
	if err := b.Reserve(1 << 30); err != nil {
		t.Errorf("nil budget Reserve: %v", err)
	}
	b.Release(1 << 30)
	if b.Used() != 0 || b.Peak() != 0 || b.Limit() != 0 {
		t.Error("nil budget should report zero")
	}
}

func TestBudgetConcurrent(t *testing.T) {
	b := NewBudget(1000)
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Reserve(30) == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if granted != 33 {
		t.Errorf("granted = %d, want 33", granted)
	}
	if b.Used() != 990 {
		t.Errorf("Used() = %d, want 990", b.Used())
	}
}
