// Package toolhost implements C1: in-process, schema-validated, timed tool
// invocation. It never returns a Go error from Execute — every outcome,
// including "unknown tool" and "bad arguments", is encoded as the literal
// string handed back to the LLM as a tool-result message (spec §4.1).
package toolhost

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/voxrelay/voxrelay/pkg/provider/llm"
)

// callTimeout is the fixed per-invocation deadline (spec §4.1, §5).
const callTimeout = 30 * time.Second

// Handler executes one tool call. args is the already-JSON-decoded argument
// object. The returned value is serialized per Execute's rules; a non-nil
// error becomes `Error: <message>` in the tool-result string.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is one registered tool: its public schema plus its handler.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON-Schema object (e.g. {"type":"object","properties":{...}}).
	Parameters map[string]any
	Handler    Handler
}

type registeredTool struct {
	def      llm.ToolDefinition
	resolved *jsonschema.Resolved
	handler  Handler
}

// Executor holds the registered tool set. The zero value is not usable;
// construct with New.
type Executor struct {
	tools map[string]registeredTool
}

// New creates an empty Executor.
func New() *Executor {
	return &Executor{tools: make(map[string]registeredTool)}
}

// Register adds or replaces a tool. Returns an error if the declared
// parameter schema doesn't compile — this is a startup-time configuration
// error, distinct from the runtime validation failures Execute reports as
// strings.
func (e *Executor) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("toolhost: tool must have a non-empty name")
	}
	if t.Handler == nil {
		return fmt.Errorf("toolhost: tool %q must have a non-nil handler", t.Name)
	}

	schema, resolved, err := compileSchema(t.Parameters)
	if err != nil {
		return fmt.Errorf("toolhost: tool %q: invalid parameter schema: %w", t.Name, err)
	}

	e.tools[t.Name] = registeredTool{
		def: llm.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		},
		resolved: resolved,
		handler:  t.Handler,
	}
	return nil
}

func compileSchema(params map[string]any) (map[string]any, *jsonschema.Resolved, error) {
	if params == nil {
		params = map[string]any{"type": "object"}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, nil, err
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, nil, err
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, nil, err
	}
	return params, resolved, nil
}

// Has reports whether name is a registered tool. C5 uses this to decide
// whether to dispatch a call to this executor or fall through to the other
// one (spec §4.5c: "dispatch to the built-in executor first, and fall back
// to C1 only if the built-in executor returns the null sentinel").
func (e *Executor) Has(name string) bool {
	_, ok := e.tools[name]
	return ok
}

// Definitions returns the ToolDefinition for every registered tool, in no
// particular order. Callers (C5) merge this with built-in and
// final_answer schemas before offering the set to the LLM.
func (e *Executor) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(e.tools))
	for _, rt := range e.tools {
		defs = append(defs, rt.def)
	}
	return defs
}

// Execute implements C1's sole operation. secrets is copied into the
// handler's context as a read-only map so handlers cannot mutate the
// session-wide secret set (spec §5: "secrets are copied into each tool
// invocation context").
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any, secrets map[string]string) string {
	rt, ok := e.tools[name]
	if !ok {
		return fmt.Sprintf("Error: Unknown tool %q", name)
	}

	if rt.resolved != nil {
		if err := rt.resolved.Validate(args); err != nil {
			return fmt.Sprintf("Error: Invalid arguments for tool %q: %s", name, joinValidationIssues(err))
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	callCtx = withSecrets(callCtx, copySecrets(secrets))
	defer cancel()

	result, err := safeInvoke(callCtx, rt.handler, args)
	if err != nil {
		return fmt.Sprintf("Error: %s", err.Error())
	}

	return formatResult(result)
}

// safeInvoke recovers from a handler panic and turns it into an error, so
// Execute's "never throws" guarantee (spec §4.1) holds even against
// misbehaving third-party handlers.
func safeInvoke(ctx context.Context, h Handler, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return h(ctx, args)
}

// formatResult applies spec §4.1's result-encoding rules: nil/absent → the
// literal "null"; an already-string value is returned unchanged; anything
// else is JSON-serialized.
func formatResult(result any) string {
	if result == nil {
		return "null"
	}
	if s, ok := result.(string); ok {
		return s
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("Error: %s", err.Error())
	}
	return string(data)
}

// joinValidationIssues flattens a jsonschema validation error into the
// comma-joined issue list spec §4.1 requires.
func joinValidationIssues(err error) string {
	// jsonschema-go may report multiple issues joined internally; normalise
	// whatever separator it uses to ", " for a stable message shape.
	msg := err.Error()
	parts := strings.Split(msg, "\n")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return strings.Join(cleaned, ", ")
}

func copySecrets(secrets map[string]string) map[string]string {
	cp := make(map[string]string, len(secrets))
	for k, v := range secrets {
		cp[k] = v
	}
	return cp
}

type secretsKey struct{}

func withSecrets(ctx context.Context, secrets map[string]string) context.Context {
	return context.WithValue(ctx, secretsKey{}, secrets)
}

// SecretsFromContext retrieves the read-only secret copy a handler may use
// to authenticate its own outbound calls.
func SecretsFromContext(ctx context.Context) map[string]string {
	secrets, _ := ctx.Value(secretsKey{}).(map[string]string)
	return secrets
}
