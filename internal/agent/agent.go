// Package agent sequences the perception-action cycle: wait for the
// trigger gesture, capture the screen, submit to the reasoning engine,
// dispatch the returned actions to the draw engine, return to waiting.
// The whole cycle runs on one logical thread; there is never more than
// one writer to the screen.
package agent

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mwhite/inkling/internal/device"
	"github.com/mwhite/inkling/internal/draw"
	"github.com/mwhite/inkling/internal/engine"
	"github.com/mwhite/inkling/internal/segment"
	"github.com/mwhite/inkling/internal/trigger"
)

// State is the orchestrator's current position in the cycle.
type State int

// Cycle states. Thinking is a sub-state of dispatch entered while the
// engine's intermediate reasoning output is being logged.
const (
	StateIdle State = iota
	StateCapturing
	StateAwaitingBackend
	StateThinking
	StateDispatching
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateAwaitingBackend:
		return "awaiting-backend"
	case StateThinking:
		return "thinking"
	case StateDispatching:
		return "dispatching"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// FrameSource produces normalized bitmaps of the current screen.
type FrameSource interface {
	Capture() (*device.Bitmap, error)
}

// Renderer puts actions on the physical screen.
type Renderer interface {
	Render(a draw.Action) error
	Progress(note string) error
	ProgressEnd() error
}

// Segmenter finds labeled regions in a bitmap. Optional; nil disables
// spatial context.
type Segmenter func(*device.Bitmap) []segment.Region

// Config tunes the agent loop.
type Config struct {
	Prompt            string
	ApplySegmentation bool
	NoLoop            bool        // run exactly one cycle, then stop
	DrawProgress      bool        // type feedback while the backend call is in flight
	SaveScreenshot    string      // debug: write each capture to this path
	BackendTimeout    time.Duration
}

// segmentationPreamble introduces the region list in the prompt.
const segmentationPreamble = "Here are interesting regions found by an " +
	"automatic segmentation pass. Use them to locate features precisely.\n\n"

// Agent is the orchestrating state machine.
type Agent struct {
	cfg      Config
	frames   FrameSource
	eng      engine.Engine
	renderer Renderer
	segment  Segmenter

	state State
}

// New wires up an agent. segmenter may be nil when segmentation is off.
func New(cfg Config, frames FrameSource, eng engine.Engine, renderer Renderer, segmenter Segmenter) *Agent {
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = engine.DefaultTimeout
	}
	return &Agent{
		cfg:      cfg,
		frames:   frames,
		eng:      eng,
		renderer: renderer,
		segment:  segmenter,
	}
}

// State returns the current cycle state.
func (a *Agent) State() State { return a.state }

// Run drives the loop until the context is cancelled, the activation
// stream closes, or a single cycle completes in no-loop mode. A failed
// cycle is reported and the machine re-arms; it never kills the loop.
func (a *Agent) Run(ctx context.Context, activations <-chan trigger.Activation) error {
	for {
		a.setState(StateIdle)

		select {
		case <-ctx.Done():
			return nil
		case act, ok := <-activations:
			if !ok {
				return nil
			}
			log.Printf("Trigger activated (contact %d)", act.Contact)
		}

		if err := a.Cycle(ctx); err != nil {
			log.Printf("Cycle failed: %v", err)
			// Leave a minimal visible mark so the tap does not appear
			// to vanish silently. Best effort; the injector may be the
			// thing that failed.
			if perr := a.renderer.Progress("!"); perr != nil {
				log.Printf("Could not mark failure on screen: %v", perr)
			}
		}

		if a.cfg.NoLoop {
			a.setState(StateIdle)
			return nil
		}
	}
}

// Cycle executes one observe-decide-act pass. Any error returns the
// machine to idle; no backend content or draw action survives into the
// next cycle.
func (a *Agent) Cycle(ctx context.Context) error {
	// Erase any progress or failure marks left by an earlier cycle.
	if err := a.renderer.ProgressEnd(); err != nil {
		log.Printf("Could not clear progress marks: %v", err)
	}

	a.setState(StateCapturing)
	bm, err := a.frames.Capture()
	if err != nil {
		return err
	}
	if a.cfg.SaveScreenshot != "" {
		if err := bm.SavePNG(a.cfg.SaveScreenshot); err != nil {
			log.Printf("Could not save screenshot: %v", err)
		}
	}

	a.eng.Clear()
	a.eng.AddText(a.cfg.Prompt)

	if a.cfg.ApplySegmentation && a.segment != nil {
		regions := a.segment(bm)
		log.Printf("Segmentation found %d regions", len(regions))
		a.eng.AddText(segmentationPreamble + segment.Describe(regions))
	}

	b64, err := bm.Base64PNG()
	if err != nil {
		return err
	}
	a.eng.AddImage(b64)

	a.setState(StateAwaitingBackend)
	if a.cfg.DrawProgress {
		if err := a.renderer.Progress("thinking..."); err != nil {
			log.Printf("Could not draw progress: %v", err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.BackendTimeout)
	actions, execErr := a.eng.Execute(callCtx)
	cancel()

	if a.cfg.DrawProgress {
		if err := a.renderer.ProgressEnd(); err != nil {
			log.Printf("Could not clear progress: %v", err)
		}
	}
	if execErr != nil {
		return fmt.Errorf("backend: %w", execErr)
	}

	a.setState(StateDispatching)
	for _, act := range actions {
		if act.Kind == draw.KindThinking {
			// Intermediate reasoning: log, draw nothing, stay in the
			// dispatch loop until a terminal action arrives.
			a.setState(StateThinking)
			if err := a.renderer.Render(act); err != nil {
				return err
			}
			a.setState(StateDispatching)
			continue
		}
		if err := a.renderer.Render(act); err != nil {
			return fmt.Errorf("dispatch: %w", err)
		}
	}
	return nil
}

func (a *Agent) setState(s State) {
	if a.state != s {
		a.state = s
	}
}
