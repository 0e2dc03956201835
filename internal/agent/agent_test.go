package agent

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwhite/inkling/internal/device"
	"github.com/mwhite/inkling/internal/draw"
	"github.com/mwhite/inkling/internal/segment"
	"github.com/mwhite/inkling/internal/trigger"
)

func whiteFrame() *device.Bitmap {
	img := image.NewGray(image.Rect(0, 0, device.NormalWidth, device.NormalHeight))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return device.NewGrayBitmap(img)
}

type fakeFrames struct {
	captures int
	err      error
}

func (f *fakeFrames) Capture() (*device.Bitmap, error) {
	f.captures++
	if f.err != nil {
		return nil, f.err
	}
	return whiteFrame(), nil
}

// fakeEngine returns a scripted action list per Execute call.
type fakeEngine struct {
	texts    []string
	images   int
	clears   int
	executes int

	results [][]draw.Action
	errs    []error
}

func (f *fakeEngine) AddText(text string) { f.texts = append(f.texts, text) }
func (f *fakeEngine) AddImage(png string) { f.images++ }
func (f *fakeEngine) Clear()              { f.texts = nil; f.images = 0; f.clears++ }

func (f *fakeEngine) Execute(ctx context.Context) ([]draw.Action, error) {
	i := f.executes
	f.executes++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return []draw.Action{draw.TextAction("ok", image.Rectangle{})}, nil
}

type fakeRenderer struct {
	rendered  []draw.Action
	progress  []string
	ends      int
	renderErr error
}

func (f *fakeRenderer) Render(a draw.Action) error {
	if f.renderErr != nil && a.Kind != draw.KindThinking {
		return f.renderErr
	}
	f.rendered = append(f.rendered, a)
	return nil
}

func (f *fakeRenderer) Progress(note string) error {
	f.progress = append(f.progress, note)
	return nil
}

func (f *fakeRenderer) ProgressEnd() error {
	f.ends++
	return nil
}

func TestCycleDispatchesActions(t *testing.T) {
	frames := &fakeFrames{}
	eng := &fakeEngine{results: [][]draw.Action{{
		draw.ThinkingAction("hmm"),
		draw.TextAction("3+7=10", image.Rect(100, 100, 300, 150)),
		draw.SVGAction("<svg/>", image.Rectangle{}),
	}}}
	rend := &fakeRenderer{}

	ag := New(Config{Prompt: "solve", DrawProgress: true}, frames, eng, rend, nil)
	require.NoError(t, ag.Cycle(context.Background()))

	assert.Equal(t, 1, frames.captures)
	assert.Equal(t, 1, eng.clears, "content never persists across cycles")
	assert.Equal(t, []string{"solve"}, eng.texts)
	assert.Equal(t, 1, eng.images)

	require.Len(t, rend.rendered, 3)
	assert.Equal(t, draw.KindThinking, rend.rendered[0].Kind)
	assert.Equal(t, "3+7=10", rend.rendered[1].Text)

	assert.Equal(t, []string{"thinking..."}, rend.progress)
	assert.Equal(t, 2, rend.ends, "cycle-start sweep plus post-backend erase")
}

func TestCycleCaptureFailure(t *testing.T) {
	frames := &fakeFrames{err: errors.New("compositor gone")}
	eng := &fakeEngine{}
	rend := &fakeRenderer{}

	ag := New(Config{Prompt: "p"}, frames, eng, rend, nil)
	err := ag.Cycle(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, eng.executes, "no backend call without a frame")
	assert.Empty(t, rend.rendered)
}

func TestCycleBackendFailure(t *testing.T) {
	frames := &fakeFrames{}
	eng := &fakeEngine{errs: []error{errors.New("rate limited")}}
	rend := &fakeRenderer{}

	ag := New(Config{Prompt: "p"}, frames, eng, rend, nil)
	err := ag.Cycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend")
	assert.Empty(t, rend.rendered, "nothing reaches the screen on backend failure")
}

func TestCycleSegmentationContext(t *testing.T) {
	frames := &fakeFrames{}
	eng := &fakeEngine{}
	rend := &fakeRenderer{}
	called := 0
	seg := func(bm *device.Bitmap) []segment.Region {
		called++
		return []segment.Region{{Rect: image.Rect(10, 20, 110, 50), Label: "text line"}}
	}

	ag := New(Config{Prompt: "p", ApplySegmentation: true}, frames, eng, rend, seg)
	require.NoError(t, ag.Cycle(context.Background()))

	assert.Equal(t, 1, called)
	require.Len(t, eng.texts, 2, "prompt plus the region description")
	assert.Contains(t, eng.texts[1], "text line at x=10 y=20")
}

func TestCycleSegmentationOffByDefault(t *testing.T) {
	frames := &fakeFrames{}
	eng := &fakeEngine{}
	rend := &fakeRenderer{}
	seg := func(bm *device.Bitmap) []segment.Region { t.Fatal("segmenter must not run"); return nil }

	ag := New(Config{Prompt: "p"}, frames, eng, rend, seg)
	require.NoError(t, ag.Cycle(context.Background()))
	require.Len(t, eng.texts, 1)
}

func TestRunNoLoopSingleCycle(t *testing.T) {
	frames := &fakeFrames{}
	eng := &fakeEngine{}
	rend := &fakeRenderer{}

	ag := New(Config{Prompt: "p", NoLoop: true}, frames, eng, rend, nil)

	activations := make(chan trigger.Activation, 2)
	activations <- trigger.Activation{Time: time.Now()}
	activations <- trigger.Activation{Time: time.Now()}

	require.NoError(t, ag.Run(context.Background(), activations))
	assert.Equal(t, 1, frames.captures, "no-loop stops after exactly one cycle")
	assert.Equal(t, StateIdle, ag.State())
}

func TestRunFailedCycleReArms(t *testing.T) {
	frames := &fakeFrames{}
	eng := &fakeEngine{errs: []error{errors.New("transient"), nil}}
	rend := &fakeRenderer{}

	ag := New(Config{Prompt: "p"}, frames, eng, rend, nil)

	activations := make(chan trigger.Activation, 2)
	activations <- trigger.Activation{Time: time.Now(), Contact: 1}
	activations <- trigger.Activation{Time: time.Now(), Contact: 2}
	close(activations)

	require.NoError(t, ag.Run(context.Background(), activations))

	assert.Equal(t, 2, eng.executes, "the loop survives a failed cycle")
	assert.Contains(t, rend.progress, "!", "a failed tap leaves a visible mark")
	require.Len(t, rend.rendered, 1, "the second cycle dispatched normally")
}

func TestRunDispatchFailureIsolated(t *testing.T) {
	frames := &fakeFrames{}
	eng := &fakeEngine{}
	rend := &fakeRenderer{renderErr: errors.New("injector gone")}

	ag := New(Config{Prompt: "p"}, frames, eng, rend, nil)

	activations := make(chan trigger.Activation, 1)
	activations <- trigger.Activation{Time: time.Now()}
	close(activations)

	require.NoError(t, ag.Run(context.Background(), activations),
		"a dispatch failure never kills the loop")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ag := New(Config{Prompt: "p"}, &fakeFrames{}, &fakeEngine{}, &fakeRenderer{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	activations := make(chan trigger.Activation)
	require.NoError(t, ag.Run(ctx, activations))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "awaiting-backend", StateAwaitingBackend.String())
	assert.Equal(t, "thinking", StateThinking.String())
}
