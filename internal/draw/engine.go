package draw

import (
	"errors"
	"fmt"
	"image"
	"log"
	"time"

	"golang.org/x/image/font"

	"github.com/mwhite/inkling/internal/input"
)

// ErrInvalidGeometry means an action's target rectangle falls outside
// the normalized screen bounds.
var ErrInvalidGeometry = errors.New("target rectangle outside normalized bounds")

// Injector is the slice of the input injector the engine drives. Tests
// substitute a recording fake.
type Injector interface {
	Pen(x, y int, phase input.Phase) error
	TypeString(s string) error
	BodyStyle() error
	Backspace(n int) error
}

// TextMode selects how text actions reach the screen.
const (
	// TextModeKeyboard types through the compositor's text layer; fast,
	// but limited to characters the key map covers.
	TextModeKeyboard = "keyboard"
	// TextModePen rasterizes glyphs and draws them with pen strokes;
	// slower, but covers any script the font does.
	TextModePen = "pen"
)

// Config tunes the engine's output pacing. MaxRunLen and EventInterval
// were found empirically against real panels; pushing either harder
// risks destabilizing the e-ink controller.
type Config struct {
	TextMode      string
	MaxRunLen     int           // longest uninterrupted pen-down run, pixels
	EventInterval time.Duration // minimum delay between injected pen events
	FontPath      string        // empty means the embedded face
	FontSize      float64
}

// DefaultConfig returns the hardware-safe defaults.
func DefaultConfig() Config {
	return Config{
		TextMode:      TextModeKeyboard,
		MaxRunLen:     120,
		EventInterval: 2 * time.Millisecond,
		FontSize:      24,
	}
}

// Engine renders actions onto the physical screen through the injector.
type Engine struct {
	inj  Injector
	cfg  Config
	face font.Face

	progressCount int
}

// NewEngine creates a draw engine. The font face is loaded once here;
// a bad font path fails fast instead of failing the first text action.
func NewEngine(inj Injector, cfg Config) (*Engine, error) {
	if cfg.MaxRunLen <= 0 {
		cfg.MaxRunLen = DefaultConfig().MaxRunLen
	}
	if cfg.FontSize <= 0 {
		cfg.FontSize = DefaultConfig().FontSize
	}
	face, err := loadFace(cfg.FontPath, cfg.FontSize)
	if err != nil {
		return nil, err
	}
	return &Engine{inj: inj, cfg: cfg, face: face}, nil
}

// Render draws one action. Failures abort this dispatch only; the
// caller decides whether to continue with the rest of the action list.
func (e *Engine) Render(a Action) error {
	switch a.Kind {
	case KindThinking:
		log.Printf("Model thinking: %s", a.Text)
		return nil
	case KindText:
		return e.renderText(a)
	case KindSVG:
		return e.renderSVG(a)
	default:
		return fmt.Errorf("unknown action kind %d", a.Kind)
	}
}

// Compile turns an action into the stroke paths it would inject,
// without touching the device. Thinking actions compile to nothing.
func (e *Engine) Compile(a Action) ([]StrokePath, error) {
	target, err := e.target(a)
	if err != nil {
		return nil, err
	}
	switch a.Kind {
	case KindText:
		mask := renderTextMask(a.Text, target.Size(), e.face)
		return stipple(mask, target.Min, e.cfg.MaxRunLen), nil
	case KindSVG:
		mask, err := rasterizeSVG(a.SVG, target.Size())
		if err != nil {
			return nil, err
		}
		return stipple(mask, target.Min, e.cfg.MaxRunLen), nil
	default:
		return nil, nil
	}
}

// Progress types a short note on screen, used as feedback while the
// backend call is in flight. ProgressEnd erases it again.
func (e *Engine) Progress(note string) error {
	if err := e.inj.TypeString(note); err != nil {
		return err
	}
	e.progressCount += input.TypedLen(note)
	return nil
}

// ProgressEnd backspaces over everything Progress has typed.
func (e *Engine) ProgressEnd() error {
	if e.progressCount == 0 {
		return nil
	}
	n := e.progressCount
	e.progressCount = 0
	return e.inj.Backspace(n)
}

func (e *Engine) renderText(a Action) error {
	if e.cfg.TextMode == TextModeKeyboard && input.Typeable(a.Text) {
		if err := e.inj.BodyStyle(); err != nil {
			return err
		}
		return e.inj.TypeString(a.Text)
	}
	paths, err := e.Compile(a)
	if err != nil {
		return err
	}
	return e.inject(paths)
}

func (e *Engine) renderSVG(a Action) error {
	paths, err := e.Compile(a)
	if err != nil {
		return err
	}
	return e.inject(paths)
}

// target validates and defaults an action's rectangle.
func (e *Engine) target(a Action) (image.Rectangle, error) {
	t := a.Target
	if t.Empty() {
		t = FullScreen
	}
	if !t.In(FullScreen) {
		return image.Rectangle{}, fmt.Errorf("%w: %v", ErrInvalidGeometry, a.Target)
	}
	return t, nil
}

// inject plays stroke paths through the injector, rate-limited per
// event. The pen-down transitions of each sample drive the phase.
func (e *Engine) inject(paths []StrokePath) error {
	for _, path := range paths {
		down := false
		for _, s := range path {
			var err error
			switch {
			case s.PenDown && !down:
				err = e.inj.Pen(s.X, s.Y, input.Down)
				down = true
			case s.PenDown:
				err = e.inj.Pen(s.X, s.Y, input.Move)
			case down:
				err = e.inj.Pen(s.X, s.Y, input.Up)
				down = false
			default:
				continue
			}
			if err != nil {
				return fmt.Errorf("injector unavailable: %w", err)
			}
			time.Sleep(e.cfg.EventInterval)
		}
		if down {
			if err := e.inj.Pen(path[len(path)-1].X, path[len(path)-1].Y, input.Up); err != nil {
				return fmt.Errorf("injector unavailable: %w", err)
			}
		}
	}
	return nil
}
