// Package trigger recognizes the corner-tap gesture that activates one
// agent cycle. It consumes the normalized touch stream and emits one
// activation per clean tap in the configured corner, ignoring pen
// strokes that merely pass through the zone.
package trigger

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/mwhite/inkling/internal/device"
	"github.com/mwhite/inkling/internal/input"
)

// Corner identifies which screen corner is armed. Exactly one corner is
// armed at a time.
type Corner int

// Screen corners.
const (
	UpperRight Corner = iota
	UpperLeft
	LowerRight
	LowerLeft
)

// ParseCorner parses a config string like "upper-right" or "UR".
func ParseCorner(s string) (Corner, error) {
	switch s {
	case "upper-right", "UR", "":
		return UpperRight, nil
	case "upper-left", "UL":
		return UpperLeft, nil
	case "lower-right", "LR":
		return LowerRight, nil
	case "lower-left", "LL":
		return LowerLeft, nil
	default:
		return 0, fmt.Errorf("unknown trigger corner %q", s)
	}
}

func (c Corner) String() string {
	switch c {
	case UpperRight:
		return "upper-right"
	case UpperLeft:
		return "upper-left"
	case LowerRight:
		return "lower-right"
	default:
		return "lower-left"
	}
}

// Config tunes gesture recognition.
type Config struct {
	Corner        Corner
	ZoneSize      int           // tap zone edge length, normalized pixels
	Debounce      time.Duration // max duration of a tap
	MoveTolerance int           // how far a contact may wander outside the zone
}

// DefaultConfig returns the tuning that works well on real hardware.
func DefaultConfig() Config {
	return Config{
		Corner:        UpperRight,
		ZoneSize:      120,
		Debounce:      500 * time.Millisecond,
		MoveTolerance: 15,
	}
}

// ErrPhaseOrder means the touch stream delivered phases out of order
// for a contact, e.g. two downs without an up.
var ErrPhaseOrder = fmt.Errorf("touch stream phases out of order")

// Activation is one recognized trigger gesture.
type Activation struct {
	Time    time.Time
	Contact int
}

// contact tracks one touch contact from down to up.
type contact struct {
	start   time.Time
	spoiled bool
}

// Detector is the gesture state machine. Feed it every touch event;
// contacts are tracked independently by id so a multi-touch artifact or
// an in-progress drawing stroke never arms the trigger.
type Detector struct {
	cfg      Config
	contacts map[int]*contact
}

// New creates a detector for the given configuration.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg, contacts: make(map[int]*contact)}
}

// Zone returns the armed corner's tap zone in normalized coordinates.
func (d *Detector) Zone() image.Rectangle {
	s := d.cfg.ZoneSize
	switch d.cfg.Corner {
	case UpperRight:
		return image.Rect(device.NormalWidth-s, 0, device.NormalWidth, s)
	case UpperLeft:
		return image.Rect(0, 0, s, s)
	case LowerRight:
		return image.Rect(device.NormalWidth-s, device.NormalHeight-s, device.NormalWidth, device.NormalHeight)
	default:
		return image.Rect(0, device.NormalHeight-s, s, device.NormalHeight)
	}
}

// Feed advances the state machine by one event. It returns a non-nil
// Activation when a complete tap is recognized: down and up both inside
// the zone, within the debounce window, with no excursion beyond the
// move tolerance in between.
func (d *Detector) Feed(ev input.TouchEvent) (*Activation, error) {
	zone := d.Zone()
	pt := image.Pt(ev.X, ev.Y)

	switch ev.Phase {
	case input.Down:
		if _, exists := d.contacts[ev.Contact]; exists {
			delete(d.contacts, ev.Contact)
			return nil, ErrPhaseOrder
		}
		if !pt.In(zone) {
			// An ordinary stroke; remember it so later moves into the
			// zone cannot arm.
			d.contacts[ev.Contact] = &contact{start: ev.Time, spoiled: true}
			return nil, nil
		}
		d.contacts[ev.Contact] = &contact{start: ev.Time}

	case input.Move:
		c, ok := d.contacts[ev.Contact]
		if !ok {
			return nil, nil
		}
		if !pt.In(zone.Inset(-d.cfg.MoveTolerance)) {
			c.spoiled = true
		}

	case input.Up:
		c, ok := d.contacts[ev.Contact]
		if !ok {
			return nil, nil
		}
		delete(d.contacts, ev.Contact)
		if c.spoiled || !pt.In(zone) {
			return nil, nil
		}
		if ev.Time.Sub(c.start) > d.cfg.Debounce {
			return nil, nil
		}
		return &Activation{Time: ev.Time, Contact: ev.Contact}, nil
	}
	return nil, nil
}

// Activations drains a touch stream into a lazy stream of trigger
// activations. Malformed stream errors are logged by discarding the
// offending contact; the stream itself keeps going, so the channel is
// logically infinite until the input closes.
func (d *Detector) Activations(ctx context.Context, events <-chan input.TouchEvent) <-chan Activation {
	out := make(chan Activation, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				act, err := d.Feed(ev)
				if err != nil {
					continue
				}
				if act != nil {
					select {
					case out <- *act:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out
}
