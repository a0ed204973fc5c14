package scratch

import (
	"errors"
	"sync"
	"testing"
)

func TestNewPool(t *testing.T) {
	tests := []struct {
		name         string
		maxPerBucket int
		wantMaxSize  int
	}{
		{
			name:         "zero means unlimited",
			maxPerBucket: 0,
			wantMaxSize:  0,
		},
		{
			name:         "positive limit",
			maxPerBucket: 5,
			wantMaxSize:  5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewPool(tt.maxPerBucket, nil)
			if pool == nil {
				t.Fatal("NewPool returned nil")
			}
			if pool.maxSize != tt.wantMaxSize {
				t.Errorf("maxSize = %d, want %d", pool.maxSize, tt.wantMaxSize)
			}
			if pool.buckets == nil {
				t.Error("buckets map is nil")
			}
		})
	}
}

func TestPool_GetPut_Reuse(t *testing.T) {
	pool := NewPool(4, nil)

	buf1, err := pool.Get(64)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(buf1) != 64 {
		t.Fatalf("len = %d, want 64", len(buf1))
	}
	buf1[0] = 0xff
	pool.Put(buf1)

	buf2, err := pool.Get(64)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if &buf1[0] != &buf2[0] {
		t.Error("expected buffer to be reused")
	}
	if buf2[0] != 0 {
		t.Error("reused buffer was not cleared")
	}

	// A different size never shares a bucket.
	pool.Put(buf2)
	buf3, _ := pool.Get(128)
	if len(buf3) != 128 {
		t.Errorf("len = %d, want 128", len(buf3))
	}
	if pool.Len() != 1 {
		t.Errorf("Len() = %d, want 1", pool.Len())
	}
}

func TestPool_GetZero(t *testing.T) {
	pool := NewPool(1, nil)
	buf, err := pool.Get(0)
	if buf != nil || err != nil {
		t.Errorf("Get(0) = %v, %v", buf, err)
	}
	pool.Put(nil)
	if pool.Len() != 0 {
		t.Errorf("Len() = %d", pool.Len())
	}
}

func TestPool_Budget(t *testing.T) {
	budget := NewBudget(100)
	pool := NewPool(1, budget)

	a, err := pool.Get(60)
	if err != nil {
		t.Fatalf("Get(60): %v", err)
	}
	if _, err := pool.Get(60); !errors.Is(err, ErrNoMemory) {
		t.Fatalf("Get over budget error = %v, want ErrNoMemory", err)
	}

	// Retained buffers stay charged.
	pool.Put(a)
	if budget.Used() != 60 {
		t.Errorf("Used() = %d, want 60", budget.Used())
	}
	// Reuse does not charge again.
	a, err = pool.Get(60)
	if err != nil {
		t.Fatalf("Get reuse: %v", err)
	}
	b, err := pool.Get(40)
	if err != nil {
		t.Fatalf("Get(40): %v", err)
	}

	pool.Put(a)
	c := make([]byte, 60)
	pool.Put(c) // bucket full, dropped and released
	if budget.Used() != 40 {
		t.Errorf("Used() = %d, want 40", budget.Used())
	}
	_ = b
}

func TestPool_Drain(t *testing.T) {
	budget := NewBudget(0)
	pool := NewPool(0, budget)
	bufs := make([][]byte, 3)
	for i := range bufs {
		bufs[i], _ = pool.Get(16)
	}
	for _, b := range bufs {
		pool.Put(b)
	}
	if budget.Used() != 48 {
		t.Fatalf("Used() = %d, want 48", budget.Used())
	}
	pool.Drain()
	if pool.Len() != 0 || budget.Used() != 0 {
		t.Errorf("after Drain: Len() = %d, Used() = %d", pool.Len(), budget.Used())
	}
}

func TestPool_Concurrent(t *testing.T) {
	pool := NewPool(8, NewBudget(0))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf, err := pool.Get(256)
				if err != nil {
					t.Error(err)
					return
				}
				buf[0] = 1
				pool.Put(buf)
			}
		}()
	}
	wg.Wait()
}
