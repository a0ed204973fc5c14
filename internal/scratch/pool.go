package scratch

import "sync"

// Pool is a thread-safe pool for reusing composition buffers.
//
// Pool groups buffers by their byte size, so a display running a fixed mode
// keeps handing the same few buffers back and forth between frames. New
// buffers are charged against the pool's Budget; buffers the pool refuses to
// retain are released from it.
//
// Thread safety: All methods are safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	buckets map[int][][]byte
	maxSize int // max buffers per bucket
	budget  *Budget
}

// NewPool creates a new buffer pool with the given maximum buffers per bucket.
// A maxPerBucket of 0 means unlimited. budget may be nil.
func NewPool(maxPerBucket int, budget *Budget) *Pool {
	return &Pool{
		buckets: make(map[int][][]byte),
		maxSize: maxPerBucket,
		budget:  budget,
	}
}

// Get retrieves a zeroed buffer of size bytes from the pool or allocates a
// new one. It fails with ErrNoMemory when a new buffer would exceed the
// budget.
func (p *Pool) Get(size int) ([]byte, error) {
	if size <= 0 {
		return nil, nil
	}

	p.mu.Lock()
	bucket := p.buckets[size]
	if len(bucket) > 0 {
		// Pop from pool
		buf := bucket[len(bucket)-1]
		p.buckets[size] = bucket[:len(bucket)-1]
		p.mu.Unlock()

		clear(buf)
		return buf, nil
	}
	p.mu.Unlock()

	if err := p.budget.Reserve(size); err != nil {
		return nil, err
	}
	return make([]byte, size), nil
}

// Put returns a buffer obtained from Get. If the bucket is at capacity the
// buffer is dropped and its bytes are released from the budget.
func (p *Pool) Put(buf []byte) {
	if len(buf) == 0 {
		return
	}

	p.mu.Lock()
	bucket := p.buckets[len(buf)]
	if p.maxSize > 0 && len(bucket) >= p.maxSize {
		p.mu.Unlock()
		p.budget.Release(len(buf))
		return
	}
	p.buckets[len(buf)] = append(bucket, buf)
	p.mu.Unlock()
}

// Drain drops every retained buffer and releases it from the budget.
func (p *Pool) Drain() {
	p.mu.Lock()
	buckets := p.buckets
	p.buckets = make(map[int][][]byte)
	p.mu.Unlock()

	for size, bucket := range buckets {
		p.budget.Release(size * len(bucket))
	}
}

// Len returns the number of retained buffers.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, bucket := range p.buckets {
		n += len(bucket)
	}
	return n
}
