// Package scratch provides memory accounting and reusable byte buffers for
// the composition pipeline.
//
// A Budget models the allocator of a constrained device: every allocation
// made on behalf of a commit or a composed frame is charged against it, and a
// charge that would exceed the limit fails with ErrNoMemory instead of
// growing the heap.
package scratch

import (
	"errors"
	"strconv"
	"sync"
)

// ErrNoMemory is returned when a Budget cannot cover an allocation.
var ErrNoMemory = errors.New("scratch: memory budget exhausted")

// PointerSize is the size in bytes charged for each element of a pointer
// array.
const PointerSize = strconv.IntSize / 8

// Budget tracks bytes charged against an optional limit.
//
// A nil *Budget is valid and never refuses an allocation.
//
// Thread safety: All methods are safe for concurrent use.
type Budget struct {
	mu    sync.Mutex
	limit int64 // <= 0 means unlimited
	used  int64
	peak  int64
}

// NewBudget creates a budget of limit bytes. A limit of 0 or less means
// unlimited.
func NewBudget(limit int64) *Budget {
	return &Budget{limit: limit}
}

// Reserve charges n bytes. It fails with ErrNoMemory, charging nothing, when
// the limit would be exceeded.
func (b *Budget) Reserve(n int) error {
	if b == nil || n <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit > 0 && b.used+int64(n) > b.limit {
		return ErrNoMemory
	}
	b.used += int64(n)
	b.peak = max(b.peak, b.used)
	return nil
}

// Release returns n bytes to the budget.
func (b *Budget) Release(n int) {
	if b == nil || n <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.used -= int64(n)
	if b.used < 0 {
		panic("scratch: budget released more than reserved")
	}
}

// Used returns the number of bytes currently charged.
func (b *Budget) Used() int64 {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Peak returns the highest number of bytes charged at once.
func (b *Budget) Peak() int64 {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peak
}

// Limit returns the configured limit, 0 or less meaning unlimited.
func (b *Budget) Limit() int64 {
	if b == nil {
		return 0
	}
	return b.limit
}
