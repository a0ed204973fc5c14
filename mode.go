package vkms

import (
	"fmt"
	"image"
	"time"

	"github.com/gogpu/gputypes"
)

// Display size limits of the virtual output.
const (
	MinWidth  = 20
	MinHeight = 20
	MaxWidth  = 4096
	MaxHeight = 4096
)

// Mode is a display timing.
//
// Only the visible size and the totals matter for a virtual output: the
// totals and the pixel clock give the frame period.
type Mode struct {
	Name string

	// Clock is the pixel clock in kHz.
	Clock int

	HDisplay, HTotal int
	VDisplay, VTotal int
}

// StandardModes lists common VESA/CEA 60 Hz timings within the output limits,
// smallest first.
var StandardModes = []Mode{
	{Name: "640x480", Clock: 25175, HDisplay: 640, HTotal: 800, VDisplay: 480, VTotal: 525},
	{Name: "800x600", Clock: 40000, HDisplay: 800, HTotal: 1056, VDisplay: 600, VTotal: 628},
	{Name: "1024x768", Clock: 65000, HDisplay: 1024, HTotal: 1344, VDisplay: 768, VTotal: 806},
	{Name: "1280x720", Clock: 74250, HDisplay: 1280, HTotal: 1650, VDisplay: 720, VTotal: 750},
	{Name: "1280x1024", Clock: 108000, HDisplay: 1280, HTotal: 1688, VDisplay: 1024, VTotal: 1066},
	{Name: "1920x1080", Clock: 148500, HDisplay: 1920, HTotal: 2200, VDisplay: 1080, VTotal: 1125},
	{Name: "2560x1440", Clock: 241500, HDisplay: 2560, HTotal: 2720, VDisplay: 1440, VTotal: 1481},
	{Name: "3840x2160", Clock: 533250, HDisplay: 3840, HTotal: 4000, VDisplay: 2160, VTotal: 2222},
}

// DefaultMode is the preferred mode of the output.
var DefaultMode = StandardModes[0]

// NewMode returns a mode of the given size refreshing at hz. The
// horizontal total is widened until the pixel clock is a whole number of
// kHz, so the period matches hz even for tiny modes.
func NewMode(width, height, hz int) Mode {
	m := Mode{
		Name:     fmt.Sprintf("%dx%d", width, height),
		HDisplay: width,
		HTotal:   width,
		VDisplay: height,
		VTotal:   height,
	}
	if width <= 0 || height <= 0 || hz <= 0 {
		return m
	}
	// A multiple of 1000 is reached within 1000 steps.
	for (m.HTotal*height*hz)%1000 != 0 {
		m.HTotal++
	}
	m.Clock = m.HTotal * height * hz / 1000
	return m
}

// Validate checks the mode against the output limits.
func (m Mode) Validate() error {
	switch {
	case m.HDisplay < MinWidth || m.HDisplay > MaxWidth:
		return fmt.Errorf("%w: width %d outside [%d, %d]", ErrInvalidMode, m.HDisplay, MinWidth, MaxWidth)
	case m.VDisplay < MinHeight || m.VDisplay > MaxHeight:
		return fmt.Errorf("%w: height %d outside [%d, %d]", ErrInvalidMode, m.VDisplay, MinHeight, MaxHeight)
	case m.HTotal < m.HDisplay || m.VTotal < m.VDisplay:
		return fmt.Errorf("%w: totals %dx%d smaller than display", ErrInvalidMode, m.HTotal, m.VTotal)
	case m.Clock <= 0:
		return fmt.Errorf("%w: pixel clock %d kHz", ErrInvalidMode, m.Clock)
	}
	return nil
}

// Bounds returns the visible area anchored at the origin.
func (m Mode) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.HDisplay, m.VDisplay)
}

// Extent returns the visible area as a GPU extent, the size a writeback
// target must have.
func (m Mode) Extent() gputypes.Extent3D {
	return gputypes.NewExtent2D(uint32(m.HDisplay), uint32(m.VDisplay))
}

// Period returns the duration of one frame: HTotal*VTotal pixels at Clock.
// It returns 0 for a mode without a pixel clock.
func (m Mode) Period() time.Duration {
	if m.Clock <= 0 {
		return 0
	}
	frame := int64(m.HTotal) * int64(m.VTotal)
	return time.Duration(frame * 1_000_000 / int64(m.Clock))
}

// Refresh returns the refresh rate in Hz, rounded to the nearest integer.
func (m Mode) Refresh() int {
	frame := int64(m.HTotal) * int64(m.VTotal)
	if frame == 0 {
		return 0
	}
	return int((int64(m.Clock)*1000 + frame/2) / frame)
}

// String returns the mode as "WxH@Hz".
func (m Mode) String() string {
	return fmt.Sprintf("%dx%d@%d", m.HDisplay, m.VDisplay, m.Refresh())
}
