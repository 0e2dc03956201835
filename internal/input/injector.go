package input

import (
	"fmt"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/mwhite/inkling/internal/device"
)

// InjectError means the kernel rejected a synthetic event or the
// virtual device node went away. It aborts the current agent cycle,
// never the process.
type InjectError struct {
	Op  string
	Err error
}

func (e *InjectError) Error() string {
	return fmt.Sprintf("inject %s: %v", e.Op, e.Err)
}

func (e *InjectError) Unwrap() error { return e.Err }

// ioctl request encoding (Linux _IOC macro).
const (
	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30

	iocWrite = 1
)

func ioc(dir, typ, nr, size uint32) uintptr {
	return uintptr(dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift)
}

// uinput ioctl requests.
var (
	uiSetEvBit   = ioc(iocWrite, 'U', 100, 4)
	uiSetKeyBit  = ioc(iocWrite, 'U', 101, 4)
	uiSetAbsBit  = ioc(iocWrite, 'U', 103, 4)
	uiDevCreate  = ioc(0, 'U', 1, 0)
	uiDevDestroy = ioc(0, 'U', 2, 0)
)

const busVirtual = 0x06

const maxPressure = 4095

// uinputUserDev mirrors struct uinput_user_dev, the legacy device
// setup record the stock kernels still expect.
type uinputUserDev struct {
	Name         [80]byte
	Bustype      uint16
	Vendor       uint16
	Product      uint16
	Version      uint16
	FFEffectsMax uint32
	AbsMax       [64]int32
	AbsMin       [64]int32
	AbsFuzz      [64]int32
	AbsFlat      [64]int32
}

// Injector is the process's one synthetic input device: a combined pen
// digitizer and keyboard registered through uinput. At most one exists
// per process; it is the single writer to the screen, so it carries no
// lock.
type Injector struct {
	profile device.Profile
	f       *os.File
}

// injectorLive guards the one-handle-per-process invariant. Concurrent
// pen and keyboard injection from two handles would interleave at the
// kernel and corrupt strokes.
var injectorLive bool

// NewInjector registers the virtual device with the kernel. Call
// SetupUinput first on hardware where the module is loadable. The
// kernel takes a moment to hand the new node to the compositor, so
// callers should allow a settle delay before the first injection.
func NewInjector(p device.Profile) (*Injector, error) {
	if injectorLive {
		return nil, fmt.Errorf("an injector already exists in this process")
	}

	f, err := os.OpenFile("/dev/uinput", os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("opening /dev/uinput: %w", err)
	}

	inj := &Injector{profile: p, f: f}
	if err := inj.register(); err != nil {
		f.Close()
		return nil, err
	}
	injectorLive = true
	return inj, nil
}

// register declares the device's capabilities and creates it.
func (in *Injector) register() error {
	fd := in.f.Fd()

	for _, ev := range []int32{evKey, evAbs, evSyn} {
		if err := ioctlInt(fd, uiSetEvBit, ev); err != nil {
			return fmt.Errorf("declaring event type %d: %w", ev, err)
		}
	}

	keys := []int32{btnToolPen, btnTouch}
	for code := int32(KeyEsc); code <= KeySpace; code++ {
		keys = append(keys, code)
	}
	for _, code := range keys {
		if err := ioctlInt(fd, uiSetKeyBit, code); err != nil {
			return fmt.Errorf("declaring key %d: %w", code, err)
		}
	}

	for _, axis := range []int32{absX, absY, absPressure} {
		if err := ioctlInt(fd, uiSetAbsBit, axis); err != nil {
			return fmt.Errorf("declaring axis %d: %w", axis, err)
		}
	}

	var dev uinputUserDev
	copy(dev.Name[:], "inkling")
	dev.Bustype = busVirtual
	dev.Vendor = 0x1209
	dev.Product = 0x0001
	dev.Version = 1
	dev.AbsMax[absX] = int32(in.profile.PenMaxX())
	dev.AbsMax[absY] = int32(in.profile.PenMaxY())
	dev.AbsMax[absPressure] = maxPressure

	buf := unsafe.Slice((*byte)(unsafe.Pointer(&dev)), unsafe.Sizeof(dev))
	if _, err := in.f.Write(buf); err != nil {
		return fmt.Errorf("writing device setup: %w", err)
	}
	if err := ioctlNone(fd, uiDevCreate); err != nil {
		return fmt.Errorf("creating virtual device: %w", err)
	}
	return nil
}

// Pen injects one pen contact sample at normalized screen coordinates.
// Each call blocks until the kernel has accepted the events.
func (in *Injector) Pen(x, y int, phase Phase) error {
	ix, iy := in.penCoords(x, y)
	switch phase {
	case Down:
		return in.emit("pen down",
			inputEvent{Type: evKey, Code: btnToolPen, Value: 1},
			inputEvent{Type: evKey, Code: btnTouch, Value: 1},
			inputEvent{Type: evAbs, Code: absX, Value: ix},
			inputEvent{Type: evAbs, Code: absY, Value: iy},
			inputEvent{Type: evAbs, Code: absPressure, Value: maxPressure},
			inputEvent{Type: evSyn, Code: synReport},
		)
	case Up:
		return in.emit("pen up",
			inputEvent{Type: evAbs, Code: absPressure, Value: 0},
			inputEvent{Type: evKey, Code: btnTouch, Value: 0},
			inputEvent{Type: evKey, Code: btnToolPen, Value: 0},
			inputEvent{Type: evSyn, Code: synReport},
		)
	default:
		return in.emit("pen move",
			inputEvent{Type: evAbs, Code: absX, Value: ix},
			inputEvent{Type: evAbs, Code: absY, Value: iy},
			inputEvent{Type: evAbs, Code: absPressure, Value: maxPressure},
			inputEvent{Type: evSyn, Code: synReport},
		)
	}
}

// Key injects a key press or release followed by a sync.
func (in *Injector) Key(code uint16, down bool) error {
	var v int32
	if down {
		v = 1
	}
	return in.emit("key",
		inputEvent{Type: evKey, Code: code, Value: v},
		inputEvent{Type: evSyn, Code: synReport},
	)
}

// Close destroys the virtual device and releases the handle.
func (in *Injector) Close() error {
	if in.f == nil {
		return nil
	}
	ioctlNone(in.f.Fd(), uiDevDestroy)
	err := in.f.Close()
	in.f = nil
	injectorLive = false
	return err
}

// penCoords maps normalized screen coordinates into the digitizer's
// axis space, handling the Gen2's inverted Y axis.
func (in *Injector) penCoords(x, y int) (int32, int32) {
	x = clamp(x, 0, device.NormalWidth-1)
	y = clamp(y, 0, device.NormalHeight-1)
	ix := int32(x * in.profile.PenMaxX() / (device.NormalWidth - 1))
	var iy int32
	if in.profile.PenYInverted() {
		iy = int32((device.NormalHeight - 1 - y) * in.profile.PenMaxY() / (device.NormalHeight - 1))
	} else {
		iy = int32(y * in.profile.PenMaxY() / (device.NormalHeight - 1))
	}
	return ix, iy
}

// emit writes a batch of events as discrete blocking writes. Any kernel
// rejection, including the node disappearing under us, surfaces as an
// InjectError so the current cycle can abort cleanly.
func (in *Injector) emit(op string, events ...inputEvent) error {
	if in.f == nil {
		return &InjectError{Op: op, Err: fmt.Errorf("injector is closed")}
	}
	for i := range events {
		events[i].Time = unix.NsecToTimeval(time.Now().UnixNano())
		if _, err := in.f.Write(events[i].bytes()); err != nil {
			return &InjectError{Op: op, Err: err}
		}
	}
	return nil
}

func ioctlInt(fd uintptr, req uintptr, val int32) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(val))
	if errno != 0 {
		return errno
	}
	return nil
}

func ioctlNone(fd uintptr, req uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
