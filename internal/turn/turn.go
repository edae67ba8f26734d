// Package turn implements C5, the bounded tool-calling loop that drives the
// LLM for one user utterance: up to four passes (one initial call plus
// MAX_TOOL_ITERATIONS re-calls), concurrent tool fan-out, and termination on
// either a `final_answer` tool call or the iteration cap (spec §4.5).
package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/voxrelay/voxrelay/pkg/protocol"
	"github.com/voxrelay/voxrelay/pkg/provider/llm"
)

// MaxToolIterations is the number of re-calls to C4 permitted after the
// initial call (spec §4.5: "MAX_TOOL_ITERATIONS = 3").
const MaxToolIterations = 3

// maxPasses is the total number of LLM responses a turn may consume: the
// initial call plus MaxToolIterations re-calls.
const maxPasses = MaxToolIterations + 1

// FinalAnswerName is the name of the mandatory tool the model calls to end
// a turn (spec §3, §4.5a).
const FinalAnswerName = "final_answer"

// finalAnswerArgs is the JSON-decoded shape of a final_answer call's args.
type finalAnswerArgs struct {
	Answer string `json:"answer"`
}

// FinalAnswerDefinition is the mandatory schema added to the offered tool
// set whenever at least one real tool is available (spec §3: "the set given
// to the LLM is: user-defined schemas ∪ schemas of enabled built-ins ∪ the
// mandatory final_answer schema").
func FinalAnswerDefinition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        FinalAnswerName,
		Description: "Call this to end the turn with your final answer to speak to the user. Always call this when you are done, even if no other tools were used.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"answer": map[string]any{
					"type":        "string",
					"description": "The final answer to speak to the user.",
				},
			},
			"required": []string{"answer"},
		},
	}
}

// Executor is the minimal interface C5 needs from a tool dispatcher. Both
// the built-in executor and C1 (user tool exec) satisfy it;
// [github.com/voxrelay/voxrelay/internal/toolhost.Executor] is the concrete
// implementation used for both roles.
type Executor interface {
	// Has reports whether name is registered. A false result is the "null
	// sentinel" that makes the built-in dispatch fall through to C1
	// (spec §4.5c).
	Has(name string) bool
	Execute(ctx context.Context, name string, args map[string]any, secrets map[string]string) string
}

// Result is what a turn produces: the text to speak and the ordered list of
// step labels ("Using <name>") describing the tools it invoked.
type Result struct {
	Text  string
	Steps []string
}

// Run executes one turn against transcript, which is mutated in place.
// transcript must already contain the system message at index 0; Run never
// removes or reorders existing entries, only appends.
//
// tools is the user-defined-plus-enabled-built-in schema set (without
// final_answer; Run adds it automatically when tools is non-empty).
// builtin and user are dispatched per spec §4.5c: builtin first, user (C1)
// as the fallback for anything builtin doesn't recognize. secrets is
// forwarded to both executors unchanged; they are responsible for copying
// it further (toolhost.Executor already does).
func Run(
	ctx context.Context,
	log *slog.Logger,
	transcript *[]llm.Message,
	userText string,
	tools []llm.ToolDefinition,
	builtin, user Executor,
	caller llm.Caller,
	model string,
	secrets map[string]string,
) (*Result, error) {
	if log == nil {
		log = slog.Default()
	}

	*transcript = append(*transcript, llm.Message{Role: "user", Content: userText})

	offered, hasFinalAnswer := withFinalAnswer(tools)
	choice := requiredChoice(offered)

	resp, err := caller.Complete(ctx, llm.Request{
		Model:      model,
		Messages:   append([]llm.Message(nil), (*transcript)...),
		Tools:      offered,
		ToolChoice: choice,
	})
	if err != nil {
		return nil, fmt.Errorf("turn: initial completion failed: %w", err)
	}

	var steps []string

	for pass := 0; pass < maxPasses; pass++ {
		msg := *resp

		if call, ok := findFinalAnswer(msg.ToolCalls); ok {
			*transcript = append(*transcript, llm.Message{
				Role:      "assistant",
				Content:   msg.Content,
				ToolCalls: msg.ToolCalls,
			})

			siblings := withoutCall(msg.ToolCalls, call.ID)
			siblingSteps, siblingResults := executeConcurrently(ctx, log, siblings, builtin, user, secrets)
			steps = append(steps, siblingSteps...)
			*transcript = append(*transcript, siblingResults...)
			steps = append(steps, fmt.Sprintf("Using %s", FinalAnswerName))

			answer := extractAnswer(call)
			*transcript = append(*transcript, llm.Message{Role: "assistant", Content: answer})
			return &Result{Text: answer, Steps: steps}, nil
		}

		if pass == maxPasses-1 {
			content := fallbackIfEmpty(msg.Content)
			*transcript = append(*transcript, llm.Message{Role: "assistant", Content: content})
			return &Result{Text: content, Steps: steps}, nil
		}

		if len(msg.ToolCalls) > 0 {
			*transcript = append(*transcript, llm.Message{
				Role:      "assistant",
				Content:   msg.Content,
				ToolCalls: msg.ToolCalls,
			})

			callSteps, results := executeConcurrently(ctx, log, msg.ToolCalls, builtin, user, secrets)
			steps = append(steps, callSteps...)
			*transcript = append(*transcript, results...)

			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			nextIsLastPass := pass+1 == maxPasses-1
			var nextTools []llm.ToolDefinition
			var nextChoice *llm.ToolChoice
			if nextIsLastPass && hasFinalAnswer {
				nextTools = []llm.ToolDefinition{FinalAnswerDefinition()}
				forced := llm.Forced(FinalAnswerName)
				nextChoice = &forced
			} else {
				nextTools = offered
				nextChoice = requiredChoice(offered)
			}

			resp, err = caller.Complete(ctx, llm.Request{
				Model:      model,
				Messages:   append([]llm.Message(nil), (*transcript)...),
				Tools:      nextTools,
				ToolChoice: nextChoice,
			})
			if err != nil {
				return nil, fmt.Errorf("turn: re-call failed: %w", err)
			}
			continue
		}

		if looksLikeToolUseFinish(msg.FinishReason) {
			log.Warn("turn: assistant finish_reason indicates tool use but no tool_calls were present", "finish_reason", msg.FinishReason)
			if strings.TrimSpace(msg.Content) == "" {
				return &Result{Text: protocol.FallbackChatResponse, Steps: steps}, nil
			}
			*transcript = append(*transcript, llm.Message{Role: "assistant", Content: msg.Content})

			resp, err = caller.Complete(ctx, llm.Request{
				Model:      model,
				Messages:   append([]llm.Message(nil), (*transcript)...),
				Tools:      offered,
				ToolChoice: choice,
			})
			if err != nil {
				return nil, fmt.Errorf("turn: retry call failed: %w", err)
			}
			continue
		}

		content := fallbackIfEmpty(msg.Content)
		*transcript = append(*transcript, llm.Message{Role: "assistant", Content: content})
		return &Result{Text: content, Steps: steps}, nil
	}

	// Unreachable: the pass==maxPasses-1 branch above always returns.
	return &Result{Text: protocol.FallbackChatResponse, Steps: steps}, nil
}

func withFinalAnswer(tools []llm.ToolDefinition) (offered []llm.ToolDefinition, has bool) {
	if len(tools) == 0 {
		return nil, false
	}
	offered = make([]llm.ToolDefinition, 0, len(tools)+1)
	offered = append(offered, tools...)
	offered = append(offered, FinalAnswerDefinition())
	return offered, true
}

func requiredChoice(tools []llm.ToolDefinition) *llm.ToolChoice {
	if len(tools) == 0 {
		return nil
	}
	c := llm.ToolChoice{Mode: "required"}
	return &c
}

func findFinalAnswer(calls []llm.ToolCall) (llm.ToolCall, bool) {
	for _, c := range calls {
		if c.Name == FinalAnswerName {
			return c, true
		}
	}
	return llm.ToolCall{}, false
}

func withoutCall(calls []llm.ToolCall, id string) []llm.ToolCall {
	out := make([]llm.ToolCall, 0, len(calls))
	for _, c := range calls {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

func extractAnswer(call llm.ToolCall) string {
	var a finalAnswerArgs
	if err := json.Unmarshal([]byte(call.Arguments), &a); err != nil {
		return protocol.FallbackChatResponse
	}
	return a.Answer
}

func fallbackIfEmpty(content string) string {
	if strings.TrimSpace(content) == "" {
		return protocol.FallbackChatResponse
	}
	return content
}

// looksLikeToolUseFinish reports whether reason is a gateway's way of
// signalling "the model wanted to use a tool" despite having sent no
// tool_calls (spec §4.5g).
func looksLikeToolUseFinish(reason string) bool {
	return strings.Contains(strings.ToLower(reason), "tool")
}

// executeConcurrently runs every call in calls against builtin (falling
// back to user per Executor's contract), fanning out concurrently but
// appending results in calls' original order (spec §4.5c, §5: "tool calls
// execute concurrently but their resulting tool messages are appended in
// the order of the LLM-issued tool-call list").
func executeConcurrently(ctx context.Context, log *slog.Logger, calls []llm.ToolCall, builtin, user Executor, secrets map[string]string) ([]string, []llm.Message) {
	if len(calls) == 0 {
		return nil, nil
	}

	steps := make([]string, len(calls))
	results := make([]string, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		steps[i] = fmt.Sprintf("Using %s", call.Name)
		g.Go(func() error {
			// Each goroutine owns a distinct slice index, so no
			// synchronization is needed for these writes.
			results[i] = dispatch(gctx, log, call, builtin, user, secrets)
			return nil
		})
	}
	// Fan-out never returns a real error: dispatch/Execute always produce a
	// string, even on failure. The error return exists only to satisfy
	// errgroup's Wait signature.
	_ = g.Wait()

	msgs := make([]llm.Message, len(calls))
	for i, call := range calls {
		msgs[i] = llm.Message{Role: "tool", Content: results[i], ToolCallID: call.ID}
	}
	return steps, msgs
}

// dispatch parses one tool call's JSON arguments and routes it to builtin,
// falling back to user only if builtin doesn't recognize the name
// (spec §4.5c).
func dispatch(ctx context.Context, log *slog.Logger, call llm.ToolCall, builtin, user Executor, secrets map[string]string) string {
	var args map[string]any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return fmt.Sprintf("Error: Invalid JSON arguments for tool %q", call.Name)
		}
	}

	if builtin != nil && builtin.Has(call.Name) {
		return builtin.Execute(ctx, call.Name, args, secrets)
	}
	if user == nil {
		log.Warn("turn: no user tool executor configured, tool call will be reported unknown", "tool", call.Name)
		return fmt.Sprintf("Error: Unknown tool %q", call.Name)
	}
	return user.Execute(ctx, call.Name, args, secrets)
}
