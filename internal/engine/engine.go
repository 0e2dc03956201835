// Package engine holds the reasoning backend clients. The agent treats
// a backend as a single synchronous call per cycle: content in, an
// ordered list of draw actions out. Retries and backoff are the
// caller's configuration concern, not implemented here.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/mwhite/inkling/internal/draw"
)

// Engine is one reasoning backend. Content accumulates between Clear
// and Execute; Execute performs exactly one request.
type Engine interface {
	// AddText appends a text block to the pending request content.
	AddText(text string)
	// AddImage appends a base64 PNG image block.
	AddImage(pngBase64 string)
	// Clear drops all pending content. Called at each cycle boundary;
	// no content persists across cycles.
	Clear()
	// Execute submits the pending content and returns the actions the
	// model chose, in order. Thinking output comes back as thinking
	// actions interleaved with the rest.
	Execute(ctx context.Context) ([]draw.Action, error)
}

// Options configures a backend client.
type Options struct {
	Model   string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// DefaultTimeout bounds the backend round trip; on expiry the cycle
// aborts like any other backend error.
const DefaultTimeout = 120 * time.Second

// New builds the named backend client, guessing the backend from the
// model name when name is empty.
func New(name string, opts Options) (Engine, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if name == "" {
		switch {
		case strings.HasPrefix(opts.Model, "claude"):
			name = "anthropic"
		case strings.HasPrefix(opts.Model, "gpt"):
			name = "openai"
		default:
			return nil, fmt.Errorf("cannot guess engine from model %q; set engine.name", opts.Model)
		}
	}
	switch name {
	case "anthropic":
		return newAnthropic(opts), nil
	case "openai":
		return newOpenAI(opts), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", name)
	}
}

// Tool schemas shared by the clients. The optional rectangle fields let
// the model place output; absent fields mean the whole screen.
var rectProperties = map[string]any{
	"x":      map[string]any{"type": "integer", "description": "Left edge of the target rectangle, 0-767"},
	"y":      map[string]any{"type": "integer", "description": "Top edge of the target rectangle, 0-1023"},
	"width":  map[string]any{"type": "integer", "description": "Width of the target rectangle"},
	"height": map[string]any{"type": "integer", "description": "Height of the target rectangle"},
}

func drawTextSchema() map[string]any {
	props := map[string]any{
		"text": map[string]any{"type": "string", "description": "Text to write on the screen"},
	}
	for k, v := range rectProperties {
		props[k] = v
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   []string{"text"},
	}
}

func drawSVGSchema() map[string]any {
	props := map[string]any{
		"svg": map[string]any{"type": "string", "description": "SVG document to draw on the screen"},
	}
	for k, v := range rectProperties {
		props[k] = v
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   []string{"svg"},
	}
}

const (
	drawTextDescription = "Write text onto the tablet screen. Use for answers, notes and labels."
	drawSVGDescription  = "Draw a vector graphic onto the tablet screen. Use simple black strokes on a transparent background."
)

// toolInput is the decoded argument object of either tool.
type toolInput struct {
	Text   string `json:"text"`
	SVG    string `json:"svg"`
	X      *int   `json:"x"`
	Y      *int   `json:"y"`
	Width  *int   `json:"width"`
	Height *int   `json:"height"`
}

func (t *toolInput) target() image.Rectangle {
	if t.X == nil || t.Y == nil || t.Width == nil || t.Height == nil {
		return image.Rectangle{}
	}
	return image.Rect(*t.X, *t.Y, *t.X+*t.Width, *t.Y+*t.Height)
}

// actionForTool decodes one tool call into a draw action.
func actionForTool(name string, args json.RawMessage) (draw.Action, error) {
	var in toolInput
	if err := json.Unmarshal(args, &in); err != nil {
		return draw.Action{}, fmt.Errorf("decoding %s arguments: %w", name, err)
	}
	switch name {
	case "draw_text":
		return draw.TextAction(in.Text, in.target()), nil
	case "draw_svg":
		return draw.SVGAction(in.SVG, in.target()), nil
	default:
		return draw.Action{}, fmt.Errorf("model called unknown tool %q", name)
	}
}
