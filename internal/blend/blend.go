package blend

import (
	"image"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/vkms/framebuffer"
)

// Mode selects how an overlay pixel is combined with the pixel below it.
type Mode uint8

const (
	// ModeOpaque copies the color bytes of the source and ignores its alpha.
	ModeOpaque Mode = iota

	// ModePremultiplied composites premultiplied source over destination.
	// Result: S + D*(1-Sa), with the output alpha forced to opaque.
	ModePremultiplied
)

// ModeFor returns the blend mode used for planes of the given format.
func ModeFor(f framebuffer.Format) Mode {
	if f.HasAlpha() {
		return ModePremultiplied
	}
	return ModeOpaque
}

// State returns the equivalent fixed-function GPU blend state. Blend selects
// its per-pixel operation from it.
func (m Mode) State() gputypes.BlendState {
	if m == ModePremultiplied {
		return gputypes.BlendStatePremultiplied()
	}
	return gputypes.BlendStateReplace()
}

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeOpaque:
		return "opaque"
	case ModePremultiplied:
		return "premultiplied"
	default:
		return "unknown"
	}
}

// Channel blends one premultiplied color channel.
//
// Formula: (src*255 + dst*(255-alpha)) / 255, rounded by div255. A source
// channel larger than alpha is not valid premultiplied color; the result
// then saturates at 255 rather than wrapping around.
func Channel(src, dst, alpha byte) byte {
	pre := uint32(src)*255 + uint32(dst)*uint32(inv255(alpha))
	return clamp255(div255(pre))
}

// pixelFunc blends one 4-byte source pixel into a destination pixel in place.
type pixelFunc func(dst, src []byte)

// blendPremultiplied writes S over D and marks the result opaque. The output
// models a non-transparent backing plane, so byte 3 is always 0xFF.
func blendPremultiplied(dst, src []byte) {
	a := src[3]
	dst[0] = Channel(src[0], dst[0], a)
	dst[1] = Channel(src[1], dst[1], a)
	dst[2] = Channel(src[2], dst[2], a)
	dst[3] = 0xff
}

// blendOpaque copies the B, G and R bytes.
func blendOpaque(dst, src []byte) {
	copy(dst[:3], src[:3])
}

func (m Mode) pixelFunc() pixelFunc {
	return pixelFuncFor(m.State())
}

// pixelFuncFor returns the CPU equivalent of a fixed-function blend state.
// A destination factor of 1-Sa is source-over on premultiplied color; any
// other state replaces the color bytes.
func pixelFuncFor(state gputypes.BlendState) pixelFunc {
	if state.Color.SrcFactor == gputypes.BlendFactorOne &&
		state.Color.DstFactor == gputypes.BlendFactorOneMinusSrcAlpha {
		return blendPremultiplied
	}
	return blendOpaque
}

// Surface describes a mapped 32-bit pixel buffer.
//
// Pixel (x, y) starts at Pix[Offset + y*Pitch + x*CPP].
type Surface struct {
	Pix    []byte
	Offset int
	Pitch  int
	CPP    int
	Width  int
	Height int
}

// SurfaceOf returns a Surface over the framebuffer mapping. The caller must
// hold a CPU access bracket on fb while the surface is in use.
func SurfaceOf(fb *framebuffer.Framebuffer) Surface {
	return Surface{
		Pix:    fb.Data(),
		Offset: fb.Offset(),
		Pitch:  fb.Pitch(),
		CPP:    fb.CPP(),
		Width:  fb.Width(),
		Height: fb.Height(),
	}
}

// Bounds returns the surface rectangle anchored at the origin.
func (s Surface) Bounds() image.Rectangle {
	return image.Rect(0, 0, s.Width, s.Height)
}

// PixelOffset returns the byte offset of pixel (x, y).
func (s Surface) PixelOffset(x, y int) int {
	return s.Offset + y*s.Pitch + x*s.CPP
}

// Blend composites the srcRect region of src into dst, placing it at the
// origin of dstRect. The copied size is the size of dstRect, clamped so that
// both the source and the destination stay inside their surfaces. Nothing is
// scaled.
func Blend(dst, src Surface, srcRect, dstRect image.Rectangle, mode Mode) {
	sx, sy := srcRect.Min.X, srcRect.Min.Y
	dx, dy := dstRect.Min.X, dstRect.Min.Y
	w, h := dstRect.Dx(), dstRect.Dy()

	// Skip rows and columns that start left of or above either surface.
	if skip := max(-sx, -dx, 0); skip > 0 {
		sx, dx, w = sx+skip, dx+skip, w-skip
	}
	if skip := max(-sy, -dy, 0); skip > 0 {
		sy, dy, h = sy+skip, dy+skip, h-skip
	}
	w = min(w, src.Width-sx, dst.Width-dx)
	h = min(h, src.Height-sy, dst.Height-dy)
	if w <= 0 || h <= 0 {
		return
	}

	fn := mode.pixelFunc()
	for row := 0; row < h; row++ {
		si := src.PixelOffset(sx, sy+row)
		di := dst.PixelOffset(dx, dy+row)
		for col := 0; col < w; col++ {
			fn(dst.Pix[di:di+4], src.Pix[si:si+4])
			si += src.CPP
			di += dst.CPP
		}
	}
}

// Copy copies the pixels of r in src, all four bytes each, into dst with
// r.Min landing on dp. The region is clamped to both surfaces.
func Copy(dst, src Surface, r image.Rectangle, dp image.Point) {
	r = r.Intersect(src.Bounds())
	dr := r.Sub(r.Min).Add(dp).Intersect(dst.Bounds())
	if dr.Empty() {
		return
	}
	r.Min = r.Min.Add(dr.Min.Sub(dp))

	rowBytes := dr.Dx() * src.CPP
	for y := 0; y < dr.Dy(); y++ {
		si := src.PixelOffset(r.Min.X, r.Min.Y+y)
		di := dst.PixelOffset(dr.Min.X, dr.Min.Y+y)
		copy(dst.Pix[di:di+rowBytes], src.Pix[si:si+rowBytes])
	}
}
