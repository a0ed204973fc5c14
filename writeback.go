package vkms

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gogpu/vkms/framebuffer"
)

var writebackFormats = []framebuffer.Format{framebuffer.FormatXRGB8888}

// WritebackJob captures the next composed frame into a framebuffer.
//
// A job is attached to one commit. It completes after the first frame
// composed for that commit has been written into the target, or with an
// error when the frame could not be produced.
type WritebackJob struct {
	fb     *framebuffer.Framebuffer
	queued atomic.Bool

	once sync.Once
	done chan struct{}
	err  error
}

// NewWritebackJob creates a job writing into fb. The framebuffer must be
// XRGB8888 and have the size of the output mode.
func NewWritebackJob(fb *framebuffer.Framebuffer) *WritebackJob {
	return &WritebackJob{fb: fb, done: make(chan struct{})}
}

// Framebuffer returns the target framebuffer.
func (j *WritebackJob) Framebuffer() *framebuffer.Framebuffer {
	return j.fb
}

// Done returns a channel closed when the job completes.
func (j *WritebackJob) Done() <-chan struct{} {
	return j.done
}

// Err returns the completion error. It is nil until Done is closed.
func (j *WritebackJob) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}

// Wait blocks until the job completes and returns its error.
func (j *WritebackJob) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-j.done:
		return j.err
	}
}

func (j *WritebackJob) complete(err error) {
	j.once.Do(func() {
		j.err = err
		close(j.done)
	})
}

// Writeback is the writeback connector of the output. It keeps the committed
// jobs in commit order until they complete.
type Writeback struct {
	out *Output

	mu   sync.Mutex
	jobs []*WritebackJob
}

func newWriteback(out *Output) *Writeback {
	return &Writeback{out: out}
}

// Formats returns the formats a job target may use.
func (w *Writeback) Formats() []framebuffer.Format {
	return slices.Clone(writebackFormats)
}

// Pending returns the number of committed jobs that have not completed.
func (w *Writeback) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.jobs)
}

// atomicCheck validates job against the new output state and the planes it
// scans out.
func (w *Writeback) atomicCheck(job *WritebackJob, s *OutputState, planes []*PlaneState) error {
	if w == nil {
		return ErrNoWriteback
	}
	fb := job.fb
	switch {
	case !s.Active:
		return fmt.Errorf("%w: output is inactive", ErrInvalidWriteback)
	case fb == nil:
		return fmt.Errorf("%w: no framebuffer", ErrInvalidWriteback)
	case job.queued.Load():
		return fmt.Errorf("%w: job already committed", ErrInvalidWriteback)
	case !slices.Contains(writebackFormats, fb.Format()):
		return fmt.Errorf("%w: unsupported format %v", ErrInvalidWriteback, fb.Format())
	case fb.Extent() != s.Mode.Extent():
		return fmt.Errorf("%w: framebuffer %v does not match mode %v", ErrInvalidWriteback, fb.Bounds().Size(), s.Mode.Bounds().Size())
	}
	for _, ps := range planes {
		if ps.cfg.FB == fb {
			return fmt.Errorf("%w: framebuffer is scanned out by %v", ErrInvalidWriteback, ps.plane)
		}
	}
	return nil
}

// atomicCommit queues job and marks it pending on s. The composer stays
// enabled until the job completes.
func (w *Writeback) atomicCommit(job *WritebackJob, s *OutputState) {
	job.queued.Store(true)
	job.fb.Get()
	w.out.writebackStarted()

	w.mu.Lock()
	w.jobs = append(w.jobs, job)
	w.mu.Unlock()

	w.out.composerMu.Lock()
	s.activeWriteback = job
	s.wbPending = true
	w.out.composerMu.Unlock()
}

// signalCompletion completes a queued job with err. Completing a job that is
// no longer queued does nothing.
func (w *Writeback) signalCompletion(job *WritebackJob, err error) {
	w.mu.Lock()
	i := slices.Index(w.jobs, job)
	if i < 0 {
		w.mu.Unlock()
		return
	}
	w.jobs = slices.Delete(w.jobs, i, i+1)
	w.mu.Unlock()

	job.complete(err)
	job.fb.Put()
	w.out.writebackDone()
}

// abandonAll completes every queued job with err.
func (w *Writeback) abandonAll(err error) {
	w.mu.Lock()
	jobs := slices.Clone(w.jobs)
	w.mu.Unlock()

	for _, job := range jobs {
		w.signalCompletion(job, err)
	}
}
