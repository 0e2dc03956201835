package input

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mwhite/inkling/internal/device"
)

// TouchReader turns the raw multitouch event stream from the
// capacitive layer into normalized TouchEvents. It only ever feeds the
// trigger detector; it never injects anything.
type TouchReader struct {
	profile device.Profile
	f       *os.File
}

// NewTouchReader opens the profile's touch device node.
func NewTouchReader(p device.Profile) (*TouchReader, error) {
	f, err := os.Open(p.TouchDevicePath())
	if err != nil {
		return nil, fmt.Errorf("opening touch device %s: %w", p.TouchDevicePath(), err)
	}
	return &TouchReader{profile: p, f: f}, nil
}

// Close releases the device node, unblocking any pending read.
func (r *TouchReader) Close() error {
	return r.f.Close()
}

// slotState tracks one multitouch slot between sync reports.
type slotState struct {
	tracking int
	x, y     int
	born     bool // tracking id assigned this report
	died     bool // tracking id cleared this report
	moved    bool
}

// Events starts a reader goroutine and returns the normalized event
// stream. The channel closes when the context is cancelled or the
// device goes away.
func (r *TouchReader) Events(ctx context.Context) <-chan TouchEvent {
	out := make(chan TouchEvent, 64)

	go func() {
		<-ctx.Done()
		r.f.Close()
	}()

	go func() {
		defer close(out)
		r.readLoop(ctx, out)
	}()

	return out
}

// readLoop parses the kernel's multitouch protocol B: per-slot state
// updated by ABS events, committed on SYN_REPORT.
func (r *TouchReader) readLoop(ctx context.Context, out chan<- TouchEvent) {
	slots := map[int]*slotState{}
	current := 0
	buf := make([]byte, eventSize*64)

	slot := func() *slotState {
		s, ok := slots[current]
		if !ok {
			s = &slotState{tracking: -1}
			slots[current] = s
		}
		return s
	}

	for {
		n, err := r.f.Read(buf)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("Touch device read failed: %v", err)
			}
			return
		}
		for off := 0; off+eventSize <= n; off += eventSize {
			etype, code, value := decodeEvent(buf[off : off+eventSize])
			switch etype {
			case evAbs:
				switch code {
				case absMTSlot:
					current = int(value)
				case absMTTracking:
					s := slot()
					if value >= 0 {
						s.tracking = int(value)
						s.born = true
					} else {
						s.died = true
					}
				case absMTPosX:
					s := slot()
					s.x = int(value)
					s.moved = true
				case absMTPosY:
					s := slot()
					s.y = int(value)
					s.moved = true
				}
			case evSyn:
				if code != synReport {
					continue
				}
				now := time.Now()
				for id, s := range slots {
					ev, ok := r.commit(s, now)
					if ok {
						select {
						case out <- ev:
						case <-ctx.Done():
							return
						}
					}
					if s.died {
						delete(slots, id)
					}
				}
			}
		}
	}
}

// commit folds a slot's per-report state into at most one TouchEvent.
func (r *TouchReader) commit(s *slotState, now time.Time) (TouchEvent, bool) {
	defer func() {
		s.born = false
		s.moved = false
	}()
	if s.tracking < 0 {
		return TouchEvent{}, false
	}
	x, y := r.normalize(s.x, s.y)
	ev := TouchEvent{Time: now, Contact: s.tracking, X: x, Y: y}
	switch {
	case s.born:
		ev.Phase = Down
	case s.died:
		ev.Phase = Up
	case s.moved:
		ev.Phase = Move
	default:
		return TouchEvent{}, false
	}
	return ev, true
}

// normalize maps raw touch axes into the normalized screen space,
// flipping axes on hardware where the touch controller is mounted
// upside down.
func (r *TouchReader) normalize(x, y int) (int, int) {
	nx := x * (device.NormalWidth - 1) / r.profile.TouchMaxX()
	ny := y * (device.NormalHeight - 1) / r.profile.TouchMaxY()
	if r.profile.TouchInverted() {
		nx = device.NormalWidth - 1 - nx
		ny = device.NormalHeight - 1 - ny
	}
	return clamp(nx, 0, device.NormalWidth-1), clamp(ny, 0, device.NormalHeight-1)
}

// decodeEvent extracts type, code and value from one raw input_event,
// skipping over the arch-dependent timestamp.
func decodeEvent(b []byte) (etype uint16, code uint16, value int32) {
	base := eventSize - 8
	etype = binary.LittleEndian.Uint16(b[base : base+2])
	code = binary.LittleEndian.Uint16(b[base+2 : base+4])
	value = int32(binary.LittleEndian.Uint32(b[base+4 : base+8]))
	return
}
