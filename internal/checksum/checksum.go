// Package checksum computes frame checksums of composed output buffers.
//
// The checksum is a little-endian CRC32 over the raw pixel bytes with the
// reflected IEEE polynomial, a zero seed and no final inversion. This is the
// convention of the Linux crc32_le(0, ...) helper, so values line up with
// what a DRM CRC reader expects from a software display.
//
// CRC32 is not a cryptographic digest. It only has to change when the
// picture changes.
package checksum

import (
	"hash/crc32"
	"image"

	"github.com/gogpu/vkms/internal/blend"
)

// Update continues a raw CRC32 with p.
//
// hash/crc32 inverts the register on entry and on exit. Inverting around the
// call cancels both, which leaves the plain shift-register value.
func Update(crc uint32, p []byte) uint32 {
	return ^crc32.Update(^crc, crc32.IEEETable, p)
}

// Compute returns the checksum of the visible rectangle of s.
//
// Pixels are fed row-major, CPP bytes each, exactly as they sit in memory.
// The rectangle is clipped to the surface. An empty rectangle yields 0.
func Compute(s blend.Surface, visible image.Rectangle) uint32 {
	visible = visible.Intersect(s.Bounds())
	if visible.Empty() {
		return 0
	}

	var crc uint32
	rowBytes := visible.Dx() * s.CPP
	for y := visible.Min.Y; y < visible.Max.Y; y++ {
		i := s.PixelOffset(visible.Min.X, y)
		crc = Update(crc, s.Pix[i:i+rowBytes])
	}
	return crc
}
