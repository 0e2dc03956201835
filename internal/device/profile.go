// Package device defines the supported tablet hardware generations and
// the framebuffer capture path that turns raw display memory into a
// normalized bitmap.
package device

import (
	"fmt"
	"os"
)

// Normalized resolution. Every bitmap leaving this package is exactly
// this size, whatever the native panel resolution is, so coordinates
// coming back from the reasoning engine always map to the same physical
// screen positions.
const (
	NormalWidth  = 768
	NormalHeight = 1024
)

// Profile identifies one supported hardware generation. It is selected
// once at startup and threaded through capture and input injection;
// nothing re-detects at runtime.
type Profile int

// Supported hardware generations.
const (
	Gen2 Profile = iota
	PaperPro
)

// paperProMarker is a sysfs path that only exists on the Paper Pro's
// i2c touch controller.
const paperProMarker = "/sys/devices/platform/30a40000.i2c/i2c-0/0-0038/input/input2"

// Detect picks the hardware profile for the machine we are running on.
// Defaults to Gen2 when nothing identifies a newer generation, matching
// the fleet's most common device.
func Detect() Profile {
	if _, err := os.Stat(paperProMarker); err == nil {
		return PaperPro
	}
	return Gen2
}

// String returns the marketing name for the profile.
func (p Profile) String() string {
	switch p {
	case Gen2:
		return "reMarkable 2"
	case PaperPro:
		return "reMarkable Paper Pro"
	default:
		return fmt.Sprintf("Profile(%d)", int(p))
	}
}

// ScreenWidth returns the native framebuffer width in pixels.
func (p Profile) ScreenWidth() int {
	if p == PaperPro {
		return 1624
	}
	return 1872
}

// ScreenHeight returns the native framebuffer height in pixels.
func (p Profile) ScreenHeight() int {
	if p == PaperPro {
		return 2154
	}
	return 1404
}

// BytesPerPixel returns the framebuffer pixel stride: 16-bit grayscale
// on Gen2, 32-bit RGBA on Paper Pro.
func (p Profile) BytesPerPixel() int {
	if p == PaperPro {
		return 4
	}
	return 2
}

// FrameSize returns the framebuffer size in bytes.
func (p Profile) FrameSize() int {
	return p.ScreenWidth() * p.ScreenHeight() * p.BytesPerPixel()
}

// PenDevicePath returns the evdev node for the pen digitizer.
func (p Profile) PenDevicePath() string {
	if p == PaperPro {
		return "/dev/input/event2"
	}
	return "/dev/input/event1"
}

// TouchDevicePath returns the evdev node for the capacitive touch layer.
func (p Profile) TouchDevicePath() string {
	if p == PaperPro {
		return "/dev/input/event3"
	}
	return "/dev/input/event2"
}

// PenMaxX returns the digitizer's maximum ABS_X value.
func (p Profile) PenMaxX() int {
	if p == PaperPro {
		return 11180
	}
	return 15725
}

// PenMaxY returns the digitizer's maximum ABS_Y value.
func (p Profile) PenMaxY() int {
	if p == PaperPro {
		return 15340
	}
	return 20966
}

// TouchMaxX returns the touch layer's maximum ABS_MT_POSITION_X value.
func (p Profile) TouchMaxX() int {
	if p == PaperPro {
		return 2064
	}
	return 1403
}

// TouchMaxY returns the touch layer's maximum ABS_MT_POSITION_Y value.
func (p Profile) TouchMaxY() int {
	if p == PaperPro {
		return 2832
	}
	return 1871
}

// TouchInverted reports whether the touch layer's axes run opposite to
// screen coordinates. The Gen2 touch controller is mounted rotated 180
// degrees relative to the panel.
func (p Profile) TouchInverted() bool {
	return p == Gen2
}

// PenYInverted reports whether the pen digitizer's Y axis runs opposite
// to screen coordinates.
func (p Profile) PenYInverted() bool {
	return p == Gen2
}
