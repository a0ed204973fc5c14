// Package blend provides fast math utilities for alpha blending.
//
// The div255 family of functions avoid expensive integer division by using
// bit shifts and addition. They are called for every channel of every
// overlay pixel on every composed frame.
//
// References:
//   - Alpha blending without division: https://arxiv.org/abs/2202.02864
//   - Alvy Ray Smith's technical memos: http://alvyray.com/Memos/
package blend

// div255 divides x by 255 using a shift approximation.
//
// Formula: (x + ((x + 257) >> 8)) >> 8
//
// x is a blended channel sum src*255 + dst*(255-alpha). For valid
// premultiplied input (src <= alpha) x stays in [0, 255*255], where the result
// equals x/255 exactly.
func div255(x uint32) uint32 {
	return (x + ((x + 257) >> 8)) >> 8
}

// inv255 computes 255 - x (inverse alpha).
func inv255(x byte) byte {
	return 255 - x
}

// clamp255 clamps to byte range [0, 255].
//
// Valid premultiplied input never exceeds 255; a source channel larger than
// its alpha would otherwise wrap around.
func clamp255(x uint32) byte {
	if x > 255 {
		return 255
	}
	return byte(x)
}
