package vkms

import (
	"fmt"
	"image"
	"slices"

	"github.com/gogpu/vkms/framebuffer"
)

// PlaneType identifies the role of a plane in the z-order.
type PlaneType int

const (
	// PlanePrimary is the bottom plane. It must cover the whole output
	// while the output is active.
	PlanePrimary PlaneType = iota

	// PlaneOverlay is a freely positioned plane above the primary.
	PlaneOverlay

	// PlaneCursor is the topmost plane.
	PlaneCursor
)

// String returns the plane type name.
func (t PlaneType) String() string {
	switch t {
	case PlanePrimary:
		return "primary"
	case PlaneOverlay:
		return "overlay"
	case PlaneCursor:
		return "cursor"
	default:
		return fmt.Sprintf("PlaneType(%d)", int(t))
	}
}

var (
	primaryFormats = []framebuffer.Format{framebuffer.FormatXRGB8888}
	overlayFormats = []framebuffer.Format{framebuffer.FormatARGB8888, framebuffer.FormatXRGB8888}
)

// Plane is one composable layer of the output.
//
// Planes are created by NewDevice and live as long as the device. The current
// plane state is only touched by commits, which are serialized by the device.
type Plane struct {
	dev     *Device
	typ     PlaneType
	zpos    int
	formats []framebuffer.Format

	state *PlaneState
}

func newPlane(dev *Device, typ PlaneType, zpos int) *Plane {
	p := &Plane{dev: dev, typ: typ, zpos: zpos, formats: overlayFormats}
	if typ == PlanePrimary {
		p.formats = primaryFormats
	}
	p.state = p.resetState()
	return p
}

// Type returns the plane type.
func (p *Plane) Type() PlaneType {
	return p.typ
}

// Zpos returns the position of the plane in the z-order, 0 being the bottom.
func (p *Plane) Zpos() int {
	return p.zpos
}

// Formats returns the pixel formats the plane can scan out.
func (p *Plane) Formats() []framebuffer.Format {
	return slices.Clone(p.formats)
}

// SupportsFormat reports whether the plane can scan out f.
func (p *Plane) SupportsFormat(f framebuffer.Format) bool {
	return slices.Contains(p.formats, f)
}

// CanPosition reports whether the plane may be placed anywhere on the output.
func (p *Plane) CanPosition() bool {
	return p.typ != PlanePrimary
}

func (p *Plane) String() string {
	return fmt.Sprintf("%s-%d", p.typ, p.zpos)
}

// PlaneConfig is the requested configuration of a plane.
//
// Src selects the region of FB to scan out and Dst places it on the output.
// Both must have the same size: planes do not scale. A nil FB disables the
// plane.
type PlaneConfig struct {
	FB  *framebuffer.Framebuffer
	Src image.Rectangle
	Dst image.Rectangle
}

// FullScreen returns a config scanning out all of fb at the output origin.
func FullScreen(fb *framebuffer.Framebuffer) PlaneConfig {
	return PlaneConfig{FB: fb, Src: fb.Bounds(), Dst: fb.Bounds()}
}

// PlaneState is the per-commit state of one plane.
//
// It holds a reference on its framebuffer, dropped when the state is
// destroyed. The composer is built by atomicUpdate and stays valid for the
// lifetime of the state.
type PlaneState struct {
	plane *Plane
	cfg   PlaneConfig

	// Computed by atomicCheck: the requested rectangles clipped to the mode.
	visible bool
	src     image.Rectangle
	dst     image.Rectangle

	composer *Composer
}

func (p *Plane) resetState() *PlaneState {
	return &PlaneState{plane: p}
}

// duplicateState copies the configuration of old. The composer and the
// clipped geometry are recomputed by the commit.
func (p *Plane) duplicateState(old *PlaneState) *PlaneState {
	s := &PlaneState{plane: p}
	if old != nil {
		s.cfg = old.cfg
	}
	if s.cfg.FB != nil {
		s.cfg.FB.Get()
	}
	return s
}

func (p *Plane) destroyState(s *PlaneState) {
	if s == nil {
		return
	}
	if s.cfg.FB != nil {
		s.cfg.FB.Put()
		s.cfg.FB = nil
	}
	s.composer = nil
}

// setConfig replaces the configuration, moving the framebuffer reference.
func (s *PlaneState) setConfig(cfg PlaneConfig) {
	if cfg.FB != nil {
		cfg.FB.Get()
	}
	if s.cfg.FB != nil {
		s.cfg.FB.Put()
	}
	s.cfg = cfg
}

// Plane returns the plane the state belongs to.
func (s *PlaneState) Plane() *Plane {
	return s.plane
}

// Config returns the requested configuration.
func (s *PlaneState) Config() PlaneConfig {
	return s.cfg
}

// Visible reports whether the plane contributes to composed frames.
func (s *PlaneState) Visible() bool {
	return s.visible
}

// atomicCheck validates the configuration against the new output state and
// computes the visible geometry.
func (p *Plane) atomicCheck(s *PlaneState, out *OutputState) error {
	s.visible = false
	s.src, s.dst = image.Rectangle{}, image.Rectangle{}

	fb := s.cfg.FB
	if fb == nil {
		return nil
	}
	if !p.SupportsFormat(fb.Format()) {
		return fmt.Errorf("%w: %v does not support format %v", ErrInvalidPlane, p, fb.Format())
	}
	if s.cfg.Src.Size() != s.cfg.Dst.Size() {
		return fmt.Errorf("%w: %v: scaling %v to %v", ErrInvalidPlane, p, s.cfg.Src.Size(), s.cfg.Dst.Size())
	}
	if s.cfg.Src.Empty() || !s.cfg.Src.In(fb.Bounds()) {
		return fmt.Errorf("%w: %v: source %v outside framebuffer %v", ErrInvalidPlane, p, s.cfg.Src, fb.Bounds())
	}
	if !out.Active {
		return nil
	}

	bounds := out.Mode.Bounds()
	if !p.CanPosition() && s.cfg.Dst != bounds {
		return fmt.Errorf("%w: %v must cover the output %v, got %v", ErrInvalidPlane, p, bounds, s.cfg.Dst)
	}
	dst := s.cfg.Dst.Intersect(bounds)
	if dst.Empty() {
		return nil
	}
	// Clip the source by the same amount as the destination.
	src := s.cfg.Src.Add(dst.Min.Sub(s.cfg.Dst.Min))
	src.Max = src.Min.Add(dst.Size())

	s.visible = true
	s.src, s.dst = src, dst
	return nil
}

// atomicUpdate builds the composer of a checked state.
func (p *Plane) atomicUpdate(s *PlaneState) {
	if !s.visible {
		s.composer = nil
		return
	}
	s.composer = newComposer(s.cfg.FB, s.src, s.dst)

	mode := s.composer.blendMode()
	Logger().Debug("vkms: plane updated",
		"plane", p.String(),
		"src", s.src,
		"dst", s.dst,
		"texture_format", s.composer.Format.TextureFormat().String(),
		"blend", mode.String(),
		"blend_dst_factor", mode.State().Color.DstFactor.String())
}
