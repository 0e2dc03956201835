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

// openaiClient talks to the OpenAI chat completions API, or anything
// wire-compatible with it via engine.base_url.
type openaiClient struct {
	opts    Options
	client  *http.Client
	content []map[string]any
}

func newOpenAI(opts Options) *openaiClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com"
	}
	return &openaiClient{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
	}
}

func (o *openaiClient) AddText(text string) {
	o.content = append(o.content, map[string]any{
		"type": "text",
		"text": text,
	})
}

func (o *openaiClient) AddImage(pngBase64 string) {
	o.content = append(o.content, map[string]any{
		"type": "image_url",
		"image_url": map[string]any{
			"url": "data:image/png;base64," + pngBase64,
		},
	})
}

func (o *openaiClient) Clear() {
	o.content = nil
}

func (o *openaiClient) Execute(ctx context.Context) ([]draw.Action, error) {
	body := map[string]any{
		"model": o.opts.Model,
		"messages": []map[string]any{
			{"role": "user", "content": o.content},
		},
		"tools": []map[string]any{
			{"type": "function", "function": map[string]any{
				"name": "draw_text", "description": drawTextDescription, "parameters": drawTextSchema(),
			}},
			{"type": "function", "function": map[string]any{
				"name": "draw_svg", "description": drawSVGDescription, "parameters": drawSVGSchema(),
			}},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.opts.BaseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+o.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading openai response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai returned %s: %s", resp.Status, truncate(data, 300))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decoding openai response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openai response contained no choices")
	}

	msg := parsed.Choices[0].Message
	var actions []draw.Action
	if msg.Content != "" {
		actions = append(actions, draw.ThinkingAction(msg.Content))
	}
	for _, call := range msg.ToolCalls {
		act, err := actionForTool(call.Function.Name, json.RawMessage(call.Function.Arguments))
		if err != nil {
			return nil, err
		}
		actions = append(actions, act)
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("openai response contained no usable content")
	}
	return actions, nil
}
