package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/foliolens/foliolens/llm"
)

// ToolExecutor is the function signature for tool execution. Executors
// return a textual payload for the backend; an error becomes an error
// string fed back into the conversation, never an aborted request.
type ToolExecutor func(ctx context.Context, arguments json.RawMessage) (string, error)

// RegisteredTool pairs a tool definition with its executor.
type RegisteredTool struct {
	Definition llm.ToolDefinition
	Executor   ToolExecutor
}

// ToolRegistry manages tool registration and lookup. It is a pure dispatch
// table: arguments are not re-validated against the schema — the backend is
// trusted to honor the declared parameters, and only execution-time
// failures are guarded.
type ToolRegistry struct {
	tools map[string]*RegisteredTool
	order []string
	mu    sync.RWMutex
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*RegisteredTool),
	}
}

// Register adds or replaces a tool in the registry.
func (r *ToolRegistry) Register(tool RegisteredTool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Definition.Name
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = &tool
}

// Get returns a registered tool by name, or nil if not found.
func (r *ToolRegistry) Get(name string) *RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has reports whether a tool with the given name is registered.
func (r *ToolRegistry) Has(name string) bool {
	return r.Get(name) != nil
}

// Definitions returns all tool definitions in registration order, for
// sending to the backend.
func (r *ToolRegistry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// Names returns the names of all registered tools in registration order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// SchemaFor derives the JSON Schema parameter map for a typed argument
// struct. Field descriptions and required markers come from jsonschema
// struct tags.
func SchemaFor[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	var zero T
	schema := reflector.Reflect(zero)

	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]interface{}{"type": "object"}
	}
	delete(m, "$schema")
	delete(m, "$id")
	m["type"] = "object"
	return m
}

// ParseToolArguments unmarshals tool call arguments into a map for label
// synthesis and ad-hoc access.
func ParseToolArguments(raw json.RawMessage) (map[string]interface{}, error) {
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return args, nil
}

// GetStringArg extracts a string argument from parsed tool arguments.
func GetStringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// maxToolOutputChars bounds what one tool result feeds back into the
// conversation, keeping a single noisy lookup from crowding the context.
const maxToolOutputChars = 8000

// truncateToolOutput applies tail truncation to oversized tool output.
func truncateToolOutput(output string) string {
	if len(output) <= maxToolOutputChars {
		return output
	}
	removed := len(output) - maxToolOutputChars
	return output[:maxToolOutputChars] +
		fmt.Sprintf("\n[Output truncated: %d characters removed. Narrow the query for more detail.]", removed)
}

// runToolCall is the single execution path shared by the inline sequential
// dispatch (conversation loop) and the bounded-concurrency batch dispatch.
// A failing tool never aborts a request: lookup misses, executor errors,
// and executor panics all become error-text results the backend can reason
// about.
func runToolCall(ctx context.Context, reg *ToolRegistry, call llm.ToolCall) (result llm.ToolResult) {
	result = llm.ToolResult{ToolCallID: call.ID}

	defer func() {
		if r := recover(); r != nil {
			result.Content = fmt.Sprintf("Tool %s failed: %v", call.Name, r)
			result.IsError = true
		}
	}()

	tool := reg.Get(call.Name)
	if tool == nil {
		result.Content = fmt.Sprintf("Unknown tool: %s", call.Name)
		result.IsError = true
		return result
	}

	output, err := tool.Executor(ctx, call.Arguments)
	if err != nil {
		result.Content = fmt.Sprintf("Tool %s failed: %v", call.Name, err)
		result.IsError = true
		return result
	}

	result.Content = truncateToolOutput(output)
	return result
}
