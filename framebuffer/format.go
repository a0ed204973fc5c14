package framebuffer

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Format is a DRM-style fourcc pixel format code.
//
// All supported formats are 32 bits per pixel, stored little-endian, so a
// pixel 0xAARRGGBB sits in memory as the bytes B, G, R, A.
type Format uint32

const (
	// FormatXRGB8888 is 32-bit RGB with an ignored padding byte ('XR24').
	FormatXRGB8888 Format = 'X' | 'R'<<8 | '2'<<16 | '4'<<24

	// FormatARGB8888 is 32-bit RGB with premultiplied alpha ('AR24').
	FormatARGB8888 Format = 'A' | 'R'<<8 | '2'<<16 | '4'<<24
)

// FormatInfo contains metadata about a pixel format.
type FormatInfo struct {
	// BytesPerPixel is the number of bytes per pixel (cpp).
	BytesPerPixel int

	// HasAlpha indicates if byte 3 of each pixel carries alpha.
	HasAlpha bool

	// TextureFormat is the equivalent GPU texture format for the byte layout.
	TextureFormat gputypes.TextureFormat
}

// formatInfoTable contains metadata for each supported format.
var formatInfoTable = map[Format]FormatInfo{
	FormatXRGB8888: {
		BytesPerPixel: 4,
		HasAlpha:      false,
		TextureFormat: gputypes.TextureFormatBGRA8Unorm,
	},
	FormatARGB8888: {
		BytesPerPixel: 4,
		HasAlpha:      true,
		TextureFormat: gputypes.TextureFormatBGRA8Unorm,
	},
}

// Info returns the FormatInfo for this format.
// Unknown formats return the zero FormatInfo.
func (f Format) Info() FormatInfo {
	return formatInfoTable[f]
}

// IsValid returns true if the format is a supported format.
func (f Format) IsValid() bool {
	_, ok := formatInfoTable[f]
	return ok
}

// BytesPerPixel returns the number of bytes per pixel for this format.
func (f Format) BytesPerPixel() int {
	return f.Info().BytesPerPixel
}

// HasAlpha returns true if this format has an alpha channel.
func (f Format) HasAlpha() bool {
	return f.Info().HasAlpha
}

// TextureFormat returns the GPU texture format with the same memory layout.
func (f Format) TextureFormat() gputypes.TextureFormat {
	return f.Info().TextureFormat
}

// RowBytes calculates the number of bytes needed for a row of the given width.
func (f Format) RowBytes(width int) int {
	return width * f.BytesPerPixel()
}

// String returns the four-character code, e.g. "XR24".
func (f Format) String() string {
	b := [4]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("Format(0x%08x)", uint32(f))
		}
	}
	return string(b[:])
}
