package vkms

import (
	"fmt"
	"image"

	"github.com/gogpu/vkms/framebuffer"
	"github.com/gogpu/vkms/internal/blend"
	"github.com/gogpu/vkms/internal/checksum"
)

// Composer describes the buffer of one visible plane for a composition
// cycle. It is built when a commit updates the plane and never changes
// afterwards.
type Composer struct {
	// Src is the region of FB that is scanned out, Dst its placement on the
	// output. Both have the same size.
	Src image.Rectangle
	Dst image.Rectangle

	FB     *framebuffer.Framebuffer
	Offset int
	Pitch  int
	CPP    int
	Format framebuffer.Format
}

func newComposer(fb *framebuffer.Framebuffer, src, dst image.Rectangle) *Composer {
	return &Composer{
		Src:    src,
		Dst:    dst,
		FB:     fb,
		Offset: fb.Offset(),
		Pitch:  fb.Pitch(),
		CPP:    fb.CPP(),
		Format: fb.Format(),
	}
}

func (c *Composer) surface() blend.Surface {
	return blend.Surface{
		Pix:    c.FB.Data(),
		Offset: c.Offset,
		Pitch:  c.Pitch,
		CPP:    c.CPP,
		Width:  c.FB.Width(),
		Height: c.FB.Height(),
	}
}

func (c *Composer) blendMode() blend.Mode {
	return blend.ModeFor(c.Format)
}

// composerWorker is the work function of s. It consumes the pending frame
// range, composes the active planes and records one CRC entry per frame of
// the range.
func (o *Output) composerWorker(s *OutputState) {
	o.composerMu.Lock()
	frameStart, frameEnd := s.frameStart, s.frameEnd
	crcPending, wbPending := s.crcPending, s.wbPending
	s.frameStart, s.frameEnd = 0, 0
	s.crcPending = false
	o.composerMu.Unlock()

	// An earlier run already consumed the range.
	if !crcPending {
		return
	}

	primary := s.primary()
	if primary == nil {
		return
	}

	var job *WritebackJob
	if wbPending {
		job = s.activeWriteback
	}

	crc, err := o.composeFrame(s, primary, job)

	if job != nil {
		o.writeback.signalCompletion(job, err)
		o.composerMu.Lock()
		s.wbPending = false
		o.composerMu.Unlock()
	}
	if err != nil {
		Logger().Error("vkms: composition failed",
			"frames", frameEnd-frameStart+1,
			"err", err)
		return
	}

	for frame := frameStart; frame <= frameEnd; frame++ {
		o.addCRCEntry(frame, crc)
	}
}

// composeFrame copies the primary plane into the output buffer, blends the
// other planes over it in z-order and returns the CRC of the primary's
// visible area. The output is the writeback target when job is set and a
// scratch buffer otherwise.
func (o *Output) composeFrame(s *OutputState, primary *Composer, job *WritebackJob) (uint32, error) {
	for _, fb := range s.framebuffers() {
		fb.BeginCPUAccess(framebuffer.AccessRead)
		defer fb.EndCPUAccess(framebuffer.AccessRead)
	}

	var (
		out    blend.Surface
		origin image.Point
	)
	if job != nil {
		fb := job.fb
		if !primary.Src.Sub(primary.Src.Min).In(fb.Bounds()) {
			return 0, fmt.Errorf("%w: target %v smaller than %v", ErrInvalidWriteback, fb.Bounds().Size(), primary.Src.Size())
		}
		fb.BeginCPUAccess(framebuffer.AccessWrite)
		defer fb.EndCPUAccess(framebuffer.AccessWrite)

		out = blend.SurfaceOf(fb)
		blend.Copy(out, primary.surface(), primary.Src, image.Point{})
	} else {
		buf, err := o.pool.Get(primary.FB.Size())
		if err != nil {
			return 0, fmt.Errorf("%w: output buffer: %w", ErrNoMemory, err)
		}
		defer o.pool.Put(buf)

		out = primary.surface()
		copy(buf, out.Pix)
		out.Pix = buf
		origin = primary.Src.Min
	}

	shift := origin.Sub(primary.Dst.Min)
	for _, ps := range s.activePlanes[1:] {
		c := ps.composer
		blend.Blend(out, c.surface(), c.Src, c.Dst.Add(shift), c.blendMode())
	}

	visible := image.Rectangle{Min: origin, Max: origin.Add(primary.Src.Size())}
	return checksum.Compute(out, visible), nil
}
