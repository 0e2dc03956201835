package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nfnt/resize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mwhite/inkling/internal/agent"
	"github.com/mwhite/inkling/internal/config"
	"github.com/mwhite/inkling/internal/device"
	"github.com/mwhite/inkling/internal/draw"
	"github.com/mwhite/inkling/internal/engine"
	"github.com/mwhite/inkling/internal/input"
	"github.com/mwhite/inkling/internal/segment"
	"github.com/mwhite/inkling/internal/trigger"
)

// Process exit codes. The three failure classes that make every future
// cycle impossible get distinct codes so supervisors can tell them
// apart.
const (
	exitCaptureInit = 2
	// exitInputInit covers the whole input surface: the uinput module,
	// the virtual injector device, and the touch stream the trigger
	// reads. Any of them missing makes every cycle impossible.
	exitInputInit = 3
	exitConfig    = 4
)

// exitError carries the exit code for a fatal initialization failure.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

var flags struct {
	model         string
	engineName    string
	prompt        string
	corner        string
	textMode      string
	noLoop        bool
	noTrigger     bool
	noDraw        bool
	noSubmit      bool
	drawProgress  bool
	applySegments bool
	saveShot      string
	inputPNG      string
}

var rootCmd = &cobra.Command{
	Use:           "inkling",
	Short:         "Vision-LLM agent for reMarkable tablets",
	Long:          "Inkling watches the tablet screen, waits for a corner tap, sends the current page to a vision model, and draws the response back with a synthetic pen and keyboard.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&flags.model, "model", "m", "", "model to use (overrides config)")
	f.StringVar(&flags.engineName, "engine", "", "backend engine: anthropic or openai (default: guess from model)")
	f.StringVar(&flags.prompt, "prompt", "", "prompt text (overrides config)")
	f.StringVar(&flags.corner, "trigger-corner", "", "trigger corner: upper-right, upper-left, lower-right, lower-left")
	f.StringVar(&flags.textMode, "text-mode", "", "text output mode: keyboard or pen")
	f.BoolVar(&flags.noLoop, "no-loop", false, "run exactly one cycle, then exit")
	f.BoolVar(&flags.noTrigger, "no-trigger", false, "start a cycle immediately instead of waiting for the gesture")
	f.BoolVar(&flags.noDraw, "no-draw", false, "skip all screen output, for testing")
	f.BoolVar(&flags.noSubmit, "no-submit", false, "capture but do not call the model, for testing")
	f.BoolVar(&flags.drawProgress, "draw-progress", true, "type progress feedback while the model is thinking")
	f.BoolVar(&flags.applySegments, "apply-segmentation", false, "pass segmented regions to the model as spatial context")
	f.StringVar(&flags.saveShot, "save-screenshot", "", "save each capture to this PNG file")
	f.StringVar(&flags.inputPNG, "input-png", "", "use this PNG instead of capturing the screen, for testing")
}

func main() {
	rootCmd.AddCommand(statusCmd, setupCmd)
	if err := rootCmd.Execute(); err != nil {
		log.Printf("Error: %v", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return &exitError{exitConfig, err}
	}
	applyFlagOverrides(cfg)

	corner, err := trigger.ParseCorner(cfg.Trigger.Corner)
	if err != nil {
		return &exitError{exitConfig, err}
	}

	profile := device.Detect()
	log.Printf("Detected device: %s", profile)

	// Frame source: the real framebuffer, or a fixed PNG for testing.
	var frames agent.FrameSource
	if flags.inputPNG != "" {
		frames = &pngSource{path: flags.inputPNG}
	} else {
		capture := device.NewCapture(profile)
		if err := capture.Probe(); err != nil {
			return &exitError{exitCaptureInit, err}
		}
		frames = capture
	}

	if flags.noSubmit {
		return captureOnly(frames)
	}

	// Injector: the one synthetic input device for the process.
	var inj draw.Injector
	if flags.noDraw {
		inj = nopInjector{}
	} else {
		if err := input.SetupUinput(profile); err != nil {
			return &exitError{exitInputInit, err}
		}
		real, err := input.NewInjector(profile)
		if err != nil {
			return &exitError{exitInputInit, fmt.Errorf("creating injector: %w", err)}
		}
		defer real.Close()
		// Give the compositor a moment to notice the new device.
		time.Sleep(1 * time.Second)
		inj = real
	}

	drawEng, err := draw.NewEngine(inj, draw.Config{
		TextMode:      cfg.Draw.TextMode,
		MaxRunLen:     cfg.Draw.MaxRunLen,
		EventInterval: time.Duration(cfg.Draw.EventIntervalMs) * time.Millisecond,
		FontPath:      cfg.Draw.FontPath,
		FontSize:      cfg.Draw.FontSize,
	})
	if err != nil {
		return &exitError{exitConfig, err}
	}

	if cfg.Engine.APIKey == "" {
		return &exitError{exitConfig, fmt.Errorf("no API key configured; run 'inkling setup' or set the environment variable")}
	}
	eng, err := engine.New(cfg.Engine.Name, engine.Options{
		Model:   cfg.Engine.Model,
		BaseURL: cfg.Engine.BaseURL,
		APIKey:  cfg.Engine.APIKey,
		Timeout: time.Duration(cfg.Engine.TimeoutS) * time.Second,
	})
	if err != nil {
		return &exitError{exitConfig, err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received shutdown signal")
		cancel()
	}()

	ag := agent.New(agent.Config{
		Prompt:            cfg.Prompt,
		ApplySegmentation: flags.applySegments,
		NoLoop:            flags.noLoop,
		DrawProgress:      flags.drawProgress && !flags.noDraw,
		SaveScreenshot:    flags.saveShot,
		BackendTimeout:    time.Duration(cfg.Engine.TimeoutS) * time.Second,
	}, frames, eng, drawEng, segment.Analyze)

	activations, cleanup, err := activationStream(ctx, profile, trigger.Config{
		Corner:        corner,
		ZoneSize:      cfg.Trigger.ZoneSize,
		Debounce:      time.Duration(cfg.Trigger.DebounceMs) * time.Millisecond,
		MoveTolerance: cfg.Trigger.MoveTolerance,
	})
	if err != nil {
		return &exitError{exitInputInit, err}
	}
	defer cleanup()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if !flags.noTrigger {
			log.Printf("Waiting for trigger (tap the %s corner)...", corner)
		}
		return ag.Run(gctx, activations)
	})
	return g.Wait()
}

// activationStream wires the touch reader through the trigger detector,
// or fabricates immediate activations in no-trigger mode.
func activationStream(ctx context.Context, profile device.Profile, cfg trigger.Config) (<-chan trigger.Activation, func(), error) {
	if flags.noTrigger {
		ch := make(chan trigger.Activation)
		go func() {
			defer close(ch)
			for {
				select {
				case ch <- trigger.Activation{Time: time.Now()}:
				case <-ctx.Done():
					return
				}
			}
		}()
		return ch, func() {}, nil
	}

	reader, err := input.NewTouchReader(profile)
	if err != nil {
		return nil, nil, fmt.Errorf("opening touch device: %w", err)
	}
	det := trigger.New(cfg)
	return det.Activations(ctx, reader.Events(ctx)), func() { reader.Close() }, nil
}

// captureOnly performs the capture half of a cycle and stops, used to
// verify the capture path without spending model calls.
func captureOnly(frames agent.FrameSource) error {
	bm, err := frames.Capture()
	if err != nil {
		return &exitError{exitCaptureInit, err}
	}
	log.Printf("Captured %dx%d frame", bm.Width, bm.Height)
	if flags.saveShot != "" {
		if err := bm.SavePNG(flags.saveShot); err != nil {
			return err
		}
		log.Printf("Saved screenshot to %s", flags.saveShot)
	}
	return nil
}

func applyFlagOverrides(cfg *config.Config) {
	if flags.model != "" {
		cfg.Engine.Model = flags.model
	}
	if flags.engineName != "" {
		cfg.Engine.Name = flags.engineName
	}
	if flags.prompt != "" {
		cfg.Prompt = flags.prompt
	}
	if flags.corner != "" {
		cfg.Trigger.Corner = flags.corner
	}
	if flags.textMode != "" {
		cfg.Draw.TextMode = flags.textMode
	}
}

// pngSource serves a fixed PNG as the frame source, normalizing it to
// the standard resolution.
type pngSource struct {
	path string
}

func (p *pngSource) Capture() (*device.Bitmap, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", p.path, err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", p.path, err)
	}

	scaled := resize.Resize(device.NormalWidth, device.NormalHeight, img, resize.Lanczos3)
	gray := image.NewGray(image.Rect(0, 0, device.NormalWidth, device.NormalHeight))
	for y := 0; y < device.NormalHeight; y++ {
		for x := 0; x < device.NormalWidth; x++ {
			gray.Set(x, y, scaled.At(x, y))
		}
	}
	return device.NewGrayBitmap(gray), nil
}

// nopInjector discards all output, backing --no-draw runs.
type nopInjector struct{}

func (nopInjector) Pen(x, y int, phase input.Phase) error { return nil }
func (nopInjector) TypeString(s string) error             { return nil }
func (nopInjector) BodyStyle() error                      { return nil }
func (nopInjector) Backspace(n int) error                 { return nil }
