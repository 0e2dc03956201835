package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mwhite/inkling/internal/draw"
)

// anthropicClient talks to the Anthropic Messages API.
type anthropicClient struct {
	opts    Options
	client  *http.Client
	content []map[string]any
}

func newAnthropic(opts Options) *anthropicClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.anthropic.com"
	}
	return &anthropicClient{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
	}
}

func (a *anthropicClient) AddText(text string) {
	a.content = append(a.content, map[string]any{
		"type": "text",
		"text": text,
	})
}

func (a *anthropicClient) AddImage(pngBase64 string) {
	a.content = append(a.content, map[string]any{
		"type": "image",
		"source": map[string]any{
			"type":       "base64",
			"media_type": "image/png",
			"data":       pngBase64,
		},
	})
}

func (a *anthropicClient) Clear() {
	a.content = nil
}

func (a *anthropicClient) Execute(ctx context.Context) ([]draw.Action, error) {
	body := map[string]any{
		"model":      a.opts.Model,
		"max_tokens": 10000,
		"messages": []map[string]any{
			{"role": "user", "content": a.content},
		},
		"tools": []map[string]any{
			{"name": "draw_text", "description": drawTextDescription, "input_schema": drawTextSchema()},
			{"name": "draw_svg", "description": drawSVGDescription, "input_schema": drawSVGSchema()},
		},
		"tool_choice": map[string]any{"type": "auto"},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.opts.BaseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", a.opts.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading anthropic response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropic returned %s: %s", resp.Status, truncate(data, 300))
	}

	var parsed struct {
		Content []struct {
			Type     string          `json:"type"`
			Text     string          `json:"text"`
			Thinking string          `json:"thinking"`
			Name     string          `json:"name"`
			Input    json.RawMessage `json:"input"`
		} `json:"content"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decoding anthropic response: %w", err)
	}

	var actions []draw.Action
	for _, item := range parsed.Content {
		switch item.Type {
		case "tool_use":
			act, err := actionForTool(item.Name, item.Input)
			if err != nil {
				return nil, err
			}
			actions = append(actions, act)
		case "thinking":
			actions = append(actions, draw.ThinkingAction(item.Thinking))
		case "text":
			actions = append(actions, draw.ThinkingAction(item.Text))
		}
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("anthropic response contained no usable content")
	}
	return actions, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
