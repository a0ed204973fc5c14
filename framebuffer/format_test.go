package framebuffer

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestFormatInfo(t *testing.T) {
	tests := []struct {
		format   Format
		name     string
		cpp      int
		hasAlpha bool
	}{
		{FormatXRGB8888, "XR24", 4, false},
		{FormatARGB8888, "AR24", 4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.format.IsValid() {
				t.Fatal("IsValid() = false")
			}
			if got := tt.format.String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}
			if got := tt.format.BytesPerPixel(); got != tt.cpp {
				t.Errorf("BytesPerPixel() = %d, want %d", got, tt.cpp)
			}
			if got := tt.format.HasAlpha(); got != tt.hasAlpha {
				t.Errorf("HasAlpha() = %v, want %v", got, tt.hasAlpha)
			}
			if got := tt.format.TextureFormat(); got != gputypes.TextureFormatBGRA8Unorm {
				t.Errorf("TextureFormat() = %v, want BGRA8Unorm", got)
			}
			if got := tt.format.RowBytes(10); got != 40 {
				t.Errorf("RowBytes(10) = %d, want 40", got)
			}
		})
	}
}

func TestFormatUnknown(t *testing.T) {
	f := Format(0x01020304)
	if f.IsValid() {
		t.Error("IsValid() = true for an unknown format")
	}
	if f.BytesPerPixel() != 0 || f.HasAlpha() {
		t.Errorf("unknown format info = %+v, want zero", f.Info())
	}
	if got := f.String(); got != "Format(0x01020304)" {
		t.Errorf("String() = %q", got)
	}
}
