// Package openaigw implements llm.Caller against an OpenAI-compatible
// chat-completion gateway — the default C4 backend.
package openaigw

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/voxrelay/voxrelay/pkg/provider/llm"
)

// Caller implements llm.Caller using the OpenAI chat-completions wire
// format, pointed at whatever gateway BaseURL resolves to (spec §4.4, §6:
// "configurable gateway").
type Caller struct {
	client oai.Client
	model  string
}

// Option configures a Caller during construction.
type Option func(*config)

type config struct {
	baseURL string
	timeout time.Duration
}

// WithBaseURL points the caller at a gateway other than api.openai.com.
func WithBaseURL(url string) Option { return func(c *config) { c.baseURL = url } }

// WithTimeout bounds each HTTP call.
func WithTimeout(d time.Duration) Option { return func(c *config) { c.timeout = d } }

// New builds a Caller. apiKey is sent as a Bearer token; model is the
// default model name used when a Request doesn't override it.
func New(apiKey, model string, opts ...Option) (*Caller, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openaigw: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openaigw: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Caller{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Complete implements llm.Caller.
func (c *Caller) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openaigw: build params: %w", err)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openaigw: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openaigw: invalid response: no choices")
	}

	choice := resp.Choices[0]
	out := &llm.Response{
		Role:         string(choice.Message.Role),
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
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

func (c *Caller) buildParams(req llm.Request) (oai.ChatCompletionNewParams, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}

	params := oai.ChatCompletionNewParams{
		Model:               shared.ChatModel(model),
		Messages:            messages,
		MaxCompletionTokens: param.NewOpt(int64(maxTokens)),
	}

	for _, td := range req.Tools {
		params.Tools = append(params.Tools, oai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        td.Name,
				Description: param.NewOpt(td.Description),
				Parameters:  shared.FunctionParameters(td.Parameters),
			},
		})
	}

	if req.ToolChoice != nil {
		params.ToolChoice = toolChoiceParam(*req.ToolChoice)
	}

	return params, nil
}

// convertMessage converts a transcript message into the content-replacement
// rule of spec §4.4 ("empty-string content replaced by '...'").
func convertMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	content := m.Content
	if content == "" {
		content = "..."
	}

	switch m.Role {
	case "system":
		return oai.SystemMessage(content), nil
	case "user":
		return oai.UserMessage(content), nil
	case "assistant":
		asst := oai.ChatCompletionAssistantMessageParam{}
		asst.Content.OfString = param.NewOpt(content)
		for _, tc := range m.ToolCalls {
			asst.ToolCalls = append(asst.ToolCalls, oai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: oai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}, nil
	case "tool":
		return oai.ToolMessage(content, m.ToolCallID), nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openaigw: unknown message role %q", m.Role)
	}
}

// toolChoiceParam converts llm.ToolChoice to the SDK's discriminated union.
func toolChoiceParam(tc llm.ToolChoice) oai.ChatCompletionToolChoiceOptionUnionParam {
	if tc.Function != "" {
		return oai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &oai.ChatCompletionNamedToolChoiceParam{
				Type: "function",
				Function: oai.ChatCompletionNamedToolChoiceFunctionParam{
					Name: tc.Function,
				},
			},
		}
	}
	mode := tc.Mode
	if mode == "" {
		mode = "auto"
	}
	return oai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt(mode)}
}

var _ llm.Caller = (*Caller)(nil)
