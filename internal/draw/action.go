// Package draw compiles the reasoning engine's structured output into
// pen strokes and keystrokes and drives the injector to put them on the
// physical screen, pacing writes so the e-ink controller stays stable.
package draw

import (
	"image"

	"github.com/mwhite/inkling/internal/device"
)

// ActionKind discriminates the Action variant.
type ActionKind int

// Action kinds.
const (
	// KindText writes a string into the target rectangle.
	KindText ActionKind = iota
	// KindSVG rasterizes a vector drawing into the target rectangle.
	KindSVG
	// KindThinking carries intermediate reasoning output; it is logged,
	// never drawn.
	KindThinking
)

// Action is one drawing instruction from the reasoning engine. It is
// consumed exactly once by the engine's Render.
type Action struct {
	Kind   ActionKind
	Text   string // KindText content or KindThinking note
	SVG    string // KindSVG document
	Target image.Rectangle
}

// FullScreen is the whole normalized screen, the default target for
// actions that do not name one.
var FullScreen = image.Rect(0, 0, device.NormalWidth, device.NormalHeight)

// TextAction builds a text action for the given target rectangle.
func TextAction(text string, target image.Rectangle) Action {
	return Action{Kind: KindText, Text: text, Target: target}
}

// SVGAction builds a vector drawing action.
func SVGAction(svg string, target image.Rectangle) Action {
	return Action{Kind: KindSVG, SVG: svg, Target: target}
}

// ThinkingAction wraps intermediate reasoning content.
func ThinkingAction(note string) Action {
	return Action{Kind: KindThinking, Text: note}
}

// Sample is one device-ready pen sample in normalized coordinates.
type Sample struct {
	X, Y    int
	PenDown bool
}

// StrokePath is an ordered run of pen samples, the form every action is
// compiled into before injection. Transient; it lives for one dispatch.
type StrokePath []Sample
