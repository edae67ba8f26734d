// Package anyllm implements llm.Caller over
// github.com/mozilla-ai/any-llm-go, offering C4 a pluggable backend beyond
// the default OpenAI-compatible gateway (pkg/provider/llm/openaigw) — e.g.
// routing the same turn-executor logic through Anthropic, Gemini, or a
// local Ollama instance without changing anything above the Caller
// interface.
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/voxrelay/voxrelay/pkg/provider/llm"
)

// Caller implements llm.Caller by wrapping an any-llm-go backend.
type Caller struct {
	backend anyllmlib.Provider
	model   string
}

// New creates a Caller backed by the named vendor ("openai", "anthropic",
// "gemini", or "ollama"). opts are any-llm-go configuration options (e.g.
// anyllmlib.WithAPIKey, anyllmlib.WithBaseURL); without an API key option
// the backend falls back to its usual environment variable.
func New(vendor, model string, opts ...anyllmlib.Option) (*Caller, error) {
	if vendor == "" {
		return nil, fmt.Errorf("anyllm: vendor must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(vendor, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", vendor, err)
	}
	return &Caller{backend: backend, model: model}, nil
}

func createBackend(vendor string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(vendor) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported vendor %q; supported: openai, anthropic, gemini, ollama", vendor)
	}
}

// Complete implements llm.Caller.
func (c *Caller) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	params := c.buildParams(req)

	resp, err := c.backend.Completion(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: invalid response: no choices")
	}

	choice := resp.Choices[0]
	out := &llm.Response{
		Role:         choice.Message.Role,
		Content:      choice.Message.ContentString(),
		FinishReason: choice.FinishReason,
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func (c *Caller) buildParams(req llm.Request) anyllmlib.CompletionParams {
	messages := make([]anyllmlib.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, convertMessage(m))
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}

	params := anyllmlib.CompletionParams{
		Model:     model,
		Messages:  messages,
		MaxTokens: &maxTokens,
	}

	for _, td := range req.Tools {
		params.Tools = append(params.Tools, anyllmlib.Tool{
			Type: "function",
			Function: anyllmlib.Function{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  td.Parameters,
			},
		})
	}

	// any-llm-go passes ToolChoice through verbatim to the wire format it
	// emulates (OpenAI-compatible), so the same string/object shapes C4
	// sends to the default gateway apply here.
	if req.ToolChoice != nil {
		if req.ToolChoice.Function != "" {
			params.ToolChoice = map[string]any{
				"type":     "function",
				"function": map[string]any{"name": req.ToolChoice.Function},
			}
		} else {
			mode := req.ToolChoice.Mode
			if mode == "" {
				mode = "auto"
			}
			params.ToolChoice = mode
		}
	}

	return params
}

func convertMessage(m llm.Message) anyllmlib.Message {
	content := m.Content
	if content == "" {
		content = "..."
	}

	msg := anyllmlib.Message{
		Role:       m.Role,
		Content:    content,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, anyllmlib.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: anyllmlib.FunctionCall{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return msg
}

var _ llm.Caller = (*Caller)(nil)
