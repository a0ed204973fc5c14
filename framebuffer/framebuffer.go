// Package framebuffer provides mapped pixel buffers for the virtual display.
//
// A Framebuffer is the CPU-visible memory behind a plane or a writeback
// target. It is reference counted: the pipeline takes a reference for every
// committed plane state that scans it out and drops it when the state is
// destroyed.
package framebuffer

import (
	"encoding/binary"
	"errors"
	"image"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// Common errors for framebuffer operations.
var (
	// ErrInvalidDimensions is returned when width or height is non-positive.
	ErrInvalidDimensions = errors.New("framebuffer: invalid dimensions")

	// ErrInvalidFormat is returned when the format is not supported.
	ErrInvalidFormat = errors.New("framebuffer: invalid format")

	// ErrInvalidPitch is returned when pitch is less than a row of pixels.
	ErrInvalidPitch = errors.New("framebuffer: pitch too small for width")

	// ErrDataSize is returned when provided data does not match the region size.
	ErrDataSize = errors.New("framebuffer: data size mismatch")

	// ErrOutOfBounds is returned when a region lies outside the buffer.
	ErrOutOfBounds = errors.New("framebuffer: region out of bounds")
)

// Compile-time checks that Framebuffer can be fed by gogpu producers.
var (
	_ gpucontext.Texture              = (*Framebuffer)(nil)
	_ gpucontext.TextureUpdater       = (*Framebuffer)(nil)
	_ gpucontext.TextureRegionUpdater = (*Framebuffer)(nil)
)

// Access selects the direction of a CPU access bracket.
type Access int

const (
	// AccessRead is used by scanout and composition.
	AccessRead Access = iota
	// AccessWrite is used by producers and by writeback.
	AccessWrite
)

// Framebuffer is a mapped, reference-counted pixel buffer.
//
// Thread safety: pixel data must only be touched inside a
// BeginCPUAccess/EndCPUAccess bracket. The helper methods in this package do
// that on their own.
type Framebuffer struct {
	width  int
	height int
	format Format
	pitch  int
	offset int
	data   []byte

	access sync.RWMutex
	refs   atomic.Int32
}

// New creates a framebuffer with a tightly packed pitch.
func New(width, height int, format Format) (*Framebuffer, error) {
	return NewWithPitch(width, height, format, format.RowBytes(width), 0)
}

// NewWithPitch creates a framebuffer whose rows are pitch bytes apart and
// whose first pixel starts offset bytes into the mapping.
func NewWithPitch(width, height int, format Format, pitch, offset int) (*Framebuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}
	if !format.IsValid() {
		return nil, ErrInvalidFormat
	}
	if pitch < format.RowBytes(width) || offset < 0 {
		return nil, ErrInvalidPitch
	}

	fb := &Framebuffer{
		width:  width,
		height: height,
		format: format,
		pitch:  pitch,
		offset: offset,
		data:   make([]byte, offset+pitch*height),
	}
	fb.refs.Store(1)
	return fb, nil
}

// Width returns the framebuffer width in pixels.
func (fb *Framebuffer) Width() int {
	return fb.width
}

// Height returns the framebuffer height in pixels.
func (fb *Framebuffer) Height() int {
	return fb.height
}

// Format returns the pixel format.
func (fb *Framebuffer) Format() Format {
	return fb.format
}

// Pitch returns the number of bytes between the starts of two rows.
func (fb *Framebuffer) Pitch() int {
	return fb.pitch
}

// Offset returns the byte offset of the first pixel in the mapping.
func (fb *Framebuffer) Offset() int {
	return fb.offset
}

// CPP returns the number of bytes per pixel.
func (fb *Framebuffer) CPP() int {
	return fb.format.BytesPerPixel()
}

// Size returns the size of the whole mapping in bytes.
func (fb *Framebuffer) Size() int {
	return len(fb.data)
}

// Bounds returns the framebuffer rectangle anchored at the origin.
func (fb *Framebuffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, fb.width, fb.height)
}

// Extent returns the framebuffer size as a GPU extent.
func (fb *Framebuffer) Extent() gputypes.Extent3D {
	return gputypes.NewExtent2D(uint32(fb.width), uint32(fb.height))
}

// Data returns the mapping. Callers must hold a CPU access bracket.
func (fb *Framebuffer) Data() []byte {
	return fb.data
}

// PixelOffset returns the byte offset of pixel (x, y) in the mapping.
// Returns -1 if coordinates are out of bounds.
func (fb *Framebuffer) PixelOffset(x, y int) int {
	if x < 0 || x >= fb.width || y < 0 || y >= fb.height {
		return -1
	}
	return fb.offset + y*fb.pitch + x*fb.CPP()
}

// BeginCPUAccess locks the mapping for reading or writing.
func (fb *Framebuffer) BeginCPUAccess(dir Access) {
	if dir == AccessWrite {
		fb.access.Lock()
		return
	}
	fb.access.RLock()
}

// EndCPUAccess releases a bracket opened by BeginCPUAccess.
func (fb *Framebuffer) EndCPUAccess(dir Access) {
	if dir == AccessWrite {
		fb.access.Unlock()
		return
	}
	fb.access.RUnlock()
}

// Get takes a reference on the framebuffer.
func (fb *Framebuffer) Get() {
	fb.refs.Add(1)
}

// Put drops a reference and reports whether it was the last one.
func (fb *Framebuffer) Put() bool {
	n := fb.refs.Add(-1)
	if n < 0 {
		panic("framebuffer: reference count underflow")
	}
	return n == 0
}

// Refs returns the current reference count.
func (fb *Framebuffer) Refs() int {
	return int(fb.refs.Load())
}

// SetPixel stores a 0xAARRGGBB value at (x, y). Out-of-range writes are ignored.
func (fb *Framebuffer) SetPixel(x, y int, argb uint32) {
	i := fb.PixelOffset(x, y)
	if i < 0 {
		return
	}
	fb.BeginCPUAccess(AccessWrite)
	binary.LittleEndian.PutUint32(fb.data[i:], argb)
	fb.EndCPUAccess(AccessWrite)
}

// Pixel returns the 0xAARRGGBB value at (x, y), or 0 if out of range.
func (fb *Framebuffer) Pixel(x, y int) uint32 {
	i := fb.PixelOffset(x, y)
	if i < 0 {
		return 0
	}
	fb.BeginCPUAccess(AccessRead)
	defer fb.EndCPUAccess(AccessRead)
	return binary.LittleEndian.Uint32(fb.data[i:])
}

// Fill sets every pixel to argb.
func (fb *Framebuffer) Fill(argb uint32) {
	fb.FillRect(fb.Bounds(), argb)
}

// FillRect sets every pixel of r, clipped to the buffer, to argb.
func (fb *Framebuffer) FillRect(r image.Rectangle, argb uint32) {
	r = r.Intersect(fb.Bounds())
	if r.Empty() {
		return
	}
	var px [4]byte
	binary.LittleEndian.PutUint32(px[:], argb)

	fb.BeginCPUAccess(AccessWrite)
	defer fb.EndCPUAccess(AccessWrite)
	cpp := fb.CPP()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := fb.offset + y*fb.pitch
		for x := r.Min.X; x < r.Max.X; x++ {
			copy(fb.data[row+x*cpp:], px[:])
		}
	}
}

// UpdateData replaces all pixels with densely packed rows from data.
// Implements gpucontext.TextureUpdater.
func (fb *Framebuffer) UpdateData(data []byte) error {
	return fb.UpdateRegion(0, 0, fb.width, fb.height, data)
}

// UpdateRegion copies densely packed rows into the w×h region at (x, y).
// Implements gpucontext.TextureRegionUpdater.
func (fb *Framebuffer) UpdateRegion(x, y, w, h int, data []byte) error {
	r := image.Rect(x, y, x+w, y+h)
	if w <= 0 || h <= 0 || !r.In(fb.Bounds()) {
		return ErrOutOfBounds
	}
	rowBytes := fb.format.RowBytes(w)
	if len(data) != rowBytes*h {
		return ErrDataSize
	}

	fb.BeginCPUAccess(AccessWrite)
	defer fb.EndCPUAccess(AccessWrite)
	for row := 0; row < h; row++ {
		dst := fb.offset + (y+row)*fb.pitch + x*fb.CPP()
		copy(fb.data[dst:dst+rowBytes], data[row*rowBytes:])
	}
	return nil
}

// ToImage converts the framebuffer to an image.RGBA.
//
// XRGB8888 pixels are reported as opaque. ARGB8888 pixels are premultiplied,
// which is what image.RGBA expects.
func (fb *Framebuffer) ToImage() *image.RGBA {
	img := image.NewRGBA(fb.Bounds())

	fb.BeginCPUAccess(AccessRead)
	defer fb.EndCPUAccess(AccessRead)
	opaque := !fb.format.HasAlpha()
	for y := 0; y < fb.height; y++ {
		src := fb.data[fb.offset+y*fb.pitch:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < fb.width; x++ {
			s := src[x*4 : x*4+4]
			d := dst[x*4 : x*4+4]
			d[0], d[1], d[2], d[3] = s[2], s[1], s[0], s[3]
			if opaque {
				d[3] = 0xff
			}
		}
	}
	return img
}
