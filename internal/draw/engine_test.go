package draw

import (
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwhite/inkling/internal/input"
)

type penEvent struct {
	X, Y  int
	Phase input.Phase
}

// fakeInjector records everything the engine sends it.
type fakeInjector struct {
	pens       []penEvent
	typed      []string
	styled     int
	backspaced int
	failPen    bool
}

func (f *fakeInjector) Pen(x, y int, phase input.Phase) error {
	if f.failPen {
		return errors.New("device gone")
	}
	f.pens = append(f.pens, penEvent{x, y, phase})
	return nil
}

func (f *fakeInjector) TypeString(s string) error {
	f.typed = append(f.typed, s)
	return nil
}

func (f *fakeInjector) BodyStyle() error {
	f.styled++
	return nil
}

func (f *fakeInjector) Backspace(n int) error {
	f.backspaced += n
	return nil
}

func testEngine(t *testing.T, cfg Config) (*Engine, *fakeInjector) {
	t.Helper()
	inj := &fakeInjector{}
	e, err := NewEngine(inj, cfg)
	require.NoError(t, err)
	return e, inj
}

func fullRectSVG(w, h int) string {
	return fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d"><rect x="0" y="0" width="%d" height="%d" fill="black"/></svg>`,
		w, h, w, h)
}

func TestKeyboardModeTypesText(t *testing.T) {
	e, inj := testEngine(t, Config{TextMode: TextModeKeyboard})

	err := e.Render(TextAction("3+7=10", image.Rect(100, 100, 300, 150)))
	require.NoError(t, err)

	assert.Equal(t, 1, inj.styled, "body style precedes typing")
	require.Len(t, inj.typed, 1)
	assert.Equal(t, "3+7=10", inj.typed[0])
	assert.Empty(t, inj.pens, "keyboard mode must not move the pen")
}

func TestKeyboardModeFallsBackToPenForUntypeable(t *testing.T) {
	e, inj := testEngine(t, Config{TextMode: TextModeKeyboard})

	err := e.Render(TextAction("π", image.Rect(0, 0, 400, 100)))
	require.NoError(t, err)

	assert.Empty(t, inj.typed, "untypeable text must not reach the keyboard")
	assert.NotEmpty(t, inj.pens, "untypeable text is drawn with the pen instead")
}

func TestCompileTextStaysInsideTarget(t *testing.T) {
	e, _ := testEngine(t, Config{TextMode: TextModePen})

	target := image.Rect(100, 100, 300, 150)
	paths, err := e.Compile(TextAction("3+7=10", target))
	require.NoError(t, err)
	require.NotEmpty(t, paths, "rendered text must produce ink")

	for _, path := range paths {
		for _, s := range path {
			assert.True(t, s.X >= target.Min.X && s.X < target.Max.X,
				"sample x=%d outside target %v", s.X, target)
			assert.True(t, s.Y >= target.Min.Y && s.Y < target.Max.Y,
				"sample y=%d outside target %v", s.Y, target)
		}
	}
}

func TestCompileCapsRunLength(t *testing.T) {
	const maxRun = 40
	e, _ := testEngine(t, Config{TextMode: TextModePen, MaxRunLen: maxRun})

	// A solid filled rectangle is the densest possible output.
	target := image.Rect(0, 0, 400, 60)
	paths, err := e.Compile(SVGAction(fullRectSVG(400, 60), target))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		first, last := -1, -1
		for _, s := range path {
			if !s.PenDown {
				continue
			}
			if first == -1 {
				first = s.X
			}
			last = s.X
		}
		require.NotEqual(t, -1, first, "every path carries ink")
		assert.LessOrEqual(t, last-first+1, maxRun,
			"pen-down run longer than the cap")
	}
}

func TestRenderSVGBalancedPenPhases(t *testing.T) {
	e, inj := testEngine(t, Config{TextMode: TextModePen, MaxRunLen: 30})

	err := e.Render(SVGAction(fullRectSVG(60, 12), image.Rect(10, 10, 70, 22)))
	require.NoError(t, err)
	require.NotEmpty(t, inj.pens)

	down := false
	for _, ev := range inj.pens {
		switch ev.Phase {
		case input.Down:
			require.False(t, down, "down while already down")
			down = true
		case input.Move:
			require.True(t, down, "move without a preceding down")
		case input.Up:
			require.True(t, down, "up without a preceding down")
			down = false
		}
	}
	assert.False(t, down, "pen left on the panel")
}

func TestRenderRejectsOutOfBoundsTarget(t *testing.T) {
	e, inj := testEngine(t, Config{TextMode: TextModePen})

	err := e.Render(TextAction("hi", image.Rect(700, 900, 900, 1100)))
	assert.ErrorIs(t, err, ErrInvalidGeometry)
	assert.Empty(t, inj.pens, "nothing may be injected for a bad target")
}

func TestEmptyTargetDefaultsToFullScreen(t *testing.T) {
	e, _ := testEngine(t, Config{TextMode: TextModePen})

	paths, err := e.Compile(TextAction("x", image.Rectangle{}))
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	for _, path := range paths {
		for _, s := range path {
			assert.True(t, image.Pt(s.X, s.Y).In(FullScreen))
		}
	}
}

func TestThinkingActionsAreNotDrawn(t *testing.T) {
	e, inj := testEngine(t, Config{TextMode: TextModePen})

	require.NoError(t, e.Render(ThinkingAction("let me see")))
	assert.Empty(t, inj.pens)
	assert.Empty(t, inj.typed)

	paths, err := e.Compile(ThinkingAction("let me see"))
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestInjectorFailureSurfaces(t *testing.T) {
	inj := &fakeInjector{failPen: true}
	e, err := NewEngine(inj, Config{TextMode: TextModePen})
	require.NoError(t, err)

	err = e.Render(SVGAction(fullRectSVG(20, 10), image.Rect(0, 0, 20, 10)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "injector unavailable")
}

func TestProgressRoundTrip(t *testing.T) {
	e, inj := testEngine(t, Config{TextMode: TextModeKeyboard})

	require.NoError(t, e.Progress("thinking..."))
	require.NoError(t, e.Progress("."))
	require.NoError(t, e.ProgressEnd())

	assert.Equal(t, []string{"thinking...", "."}, inj.typed)
	assert.Equal(t, len("thinking...")+1, inj.backspaced)

	// A second end is a no-op.
	require.NoError(t, e.ProgressEnd())
	assert.Equal(t, len("thinking...")+1, inj.backspaced)
}

func TestProgressCountsKeystrokesNotBytes(t *testing.T) {
	e, inj := testEngine(t, Config{TextMode: TextModeKeyboard})

	// Only the mapped runes produce keystrokes, so only they may be
	// backspaced; over-erasing would eat the user's own content.
	require.NoError(t, e.Progress("okπ"))
	require.NoError(t, e.ProgressEnd())
	assert.Equal(t, 2, inj.backspaced)
}

func TestStippleSplitsLongRuns(t *testing.T) {
	mask := image.NewRGBA(image.Rect(0, 0, 300, 1))
	for x := 0; x < 300; x++ {
		mask.Set(x, 0, image.Black)
	}

	paths := stipple(mask, image.Pt(0, 0), 100)
	require.Len(t, paths, 3, "300px run splits into three capped segments")
	for _, path := range paths {
		require.GreaterOrEqual(t, len(path), 3)
		assert.False(t, path[0].PenDown, "paths start with a hover sample")
		assert.False(t, path[len(path)-1].PenDown, "paths end with a lift")
	}
}

func TestWrapLines(t *testing.T) {
	lines := wrapLines("the quick brown fox", 80, 10)
	assert.Equal(t, []string{"the", "quick", "brown", "fox"}, lines)

	lines = wrapLines("unbreakable", 80, 10)
	assert.Equal(t, []string{"unbreaka", "ble"}, lines)

	lines = wrapLines("ab cd", 200, 10)
	assert.Equal(t, []string{"ab cd"}, lines)

	lines = wrapLines("a\n\nb", 200, 10)
	assert.Equal(t, []string{"a", "", "b"}, lines)
}
