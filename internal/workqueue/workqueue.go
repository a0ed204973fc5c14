// Package workqueue implements an ordered, single-goroutine work queue with
// single-flight work items.
//
// Items run one at a time on a dedicated worker goroutine, in the order they
// were queued. A Work item is either idle, pending (queued) or running.
// Enqueueing a pending Work is a no-op, so a producer that fires faster than
// the consumer coalesces into one execution per item. Distinct items never
// displace each other. A Work that is running may be queued again; the next
// execution starts after the current one returns.
package workqueue

import (
	"sync"
	"sync/atomic"
)

// Work is a unit of deferred execution bound to a function.
//
// Thread safety: Work methods are safe for concurrent use.
type Work struct {
	fn func()

	pending atomic.Bool
	running atomic.Bool
}

// NewWork creates an idle work item that runs fn.
func NewWork(fn func()) *Work {
	return &Work{fn: fn}
}

// Pending reports whether w is queued and has not started yet.
func (w *Work) Pending() bool {
	return w.pending.Load()
}

// Running reports whether w is executing right now.
func (w *Work) Running() bool {
	return w.running.Load()
}

// Busy reports whether w is pending or running.
func (w *Work) Busy() bool {
	return w.Pending() || w.Running()
}

// Queue runs work items one at a time on a dedicated goroutine.
//
// Each item is queued at most once, so the queue never holds more entries
// than there are live Work items.
//
// Thread safety: Queue is safe for concurrent use. Flush and Drain must not
// be called from a work function running on the same queue.
type Queue struct {
	name string

	mu      sync.Mutex
	cond    *sync.Cond
	items   []*Work
	current *Work
	closed  bool

	// exited is closed when the worker goroutine returns.
	exited chan struct{}
}

// New creates a queue and starts its worker goroutine.
func New(name string) *Queue {
	q := &Queue{
		name:   name,
		exited: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)

	go q.worker()
	return q
}

// Name returns the queue name used in log records.
func (q *Queue) Name() string {
	return q.name
}

// worker is the main loop of the queue goroutine. After Close it runs what
// was accepted before and returns.
func (q *Queue) worker() {
	defer close(q.exited)

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 {
			return
		}

		w := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		q.current = w
		// Clear pending before running so that the work can be queued again
		// while it executes.
		w.running.Store(true)
		w.pending.Store(false)
		q.mu.Unlock()

		w.fn()

		q.mu.Lock()
		q.current = nil
		w.running.Store(false)
		q.cond.Broadcast()
	}
}

// Enqueue queues w for execution behind the items already waiting. It
// returns false, doing nothing, when w is already pending or the queue is
// closed.
func (q *Queue) Enqueue(w *Work) bool {
	if !w.pending.CompareAndSwap(false, true) {
		slogger().Debug("workqueue: work already pending", "queue", q.name)
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		w.pending.Store(false)
		q.cond.Broadcast()
		return false
	}
	q.items = append(q.items, w)
	q.cond.Broadcast()
	return true
}

// Flush waits until w is neither pending nor running.
func (q *Queue) Flush(w *Work) {
	q.mu.Lock()
	for w.Busy() {
		q.cond.Wait()
	}
	q.mu.Unlock()
}

// Drain waits until nothing is queued or running.
func (q *Queue) Drain() {
	q.mu.Lock()
	for len(q.items) > 0 || q.current != nil {
		q.cond.Wait()
	}
	q.mu.Unlock()
}

// Len returns the number of waiting work items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting work, runs the items already queued and waits for
// the worker goroutine to exit. Safe to call multiple times.
func (q *Queue) Close() {
	q.mu.Lock()
	already := q.closed
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	<-q.exited
	if !already {
		slogger().Debug("workqueue: closed", "queue", q.name)
	}
}
