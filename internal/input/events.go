// Package input owns the synthetic input device registered with the
// kernel's uinput subsystem and the raw touch event stream read from
// the capacitive layer. It is the only package that writes input
// events; everything above it works in the normalized coordinate space.
package input

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux input event types.
const (
	evSyn = 0x00
	evKey = 0x01
	evAbs = 0x03
)

// SYN codes.
const synReport = 0x00

// Stylus buttons.
const (
	btnToolPen = 0x140
	btnTouch   = 0x14a
)

// ABS axes.
const (
	absX          = 0x00
	absY          = 0x01
	absPressure   = 0x18
	absMTSlot     = 0x2f
	absMTPosX     = 0x35
	absMTPosY     = 0x36
	absMTTracking = 0x39
)

// Keyboard keycodes, from linux/input-event-codes.h. Only the set the
// key map uses is listed.
const (
	KeyEsc        = 1
	Key1          = 2
	Key2          = 3
	Key3          = 4
	Key4          = 5
	Key5          = 6
	Key6          = 7
	Key7          = 8
	Key8          = 9
	Key9          = 10
	Key0          = 11
	KeyMinus      = 12
	KeyEqual      = 13
	KeyBackspace  = 14
	KeyTab        = 15
	KeyQ          = 16
	KeyW          = 17
	KeyE          = 18
	KeyR          = 19
	KeyT          = 20
	KeyY          = 21
	KeyU          = 22
	KeyI          = 23
	KeyO          = 24
	KeyP          = 25
	KeyLeftBrace  = 26
	KeyRightBrace = 27
	KeyEnter      = 28
	KeyLeftCtrl   = 29
	KeyA          = 30
	KeyS          = 31
	KeyD          = 32
	KeyF          = 33
	KeyG          = 34
	KeyH          = 35
	KeyJ          = 36
	KeyK          = 37
	KeyL          = 38
	KeySemicolon  = 39
	KeyApostrophe = 40
	KeyGrave      = 41
	KeyLeftShift  = 42
	KeyBackslash  = 43
	KeyZ          = 44
	KeyX          = 45
	KeyC          = 46
	KeyV          = 47
	KeyB          = 48
	KeyN          = 49
	KeyM          = 50
	KeyComma      = 51
	KeyDot        = 52
	KeySlash      = 53
	KeyLeftAlt    = 56
	KeySpace      = 57
)

// inputEvent mirrors struct input_event. The timeval makes its size
// arch-dependent (16 bytes on 32-bit Gen2, 24 on the Paper Pro's
// aarch64); using unix.Timeval keeps the layout right either way.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

func (e *inputEvent) bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(e)), unsafe.Sizeof(*e))
}

const eventSize = int(unsafe.Sizeof(inputEvent{}))

// Phase is the lifecycle stage of a touch or pen contact.
type Phase int

// Contact phases.
const (
	Down Phase = iota
	Move
	Up
)

func (p Phase) String() string {
	switch p {
	case Down:
		return "down"
	case Move:
		return "move"
	case Up:
		return "up"
	default:
		return "unknown"
	}
}

// TouchEvent is one touch contact sample in normalized screen
// coordinates, as produced by the touch reader.
type TouchEvent struct {
	Time    time.Time
	Contact int
	X, Y    int
	Phase   Phase
}
