package agent

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/achadsiri/gemini-cli/llm"
)

// ToolResult is what a tool hands back after running. LLMContent is sent to
// the model; ReturnDisplay is shown to the user.
type ToolResult struct {
	LLMContent    string `json:"llm_content"`
	ReturnDisplay string `json:"return_display,omitempty"`
}

// Tool is a callable capability declared to the model.
type Tool interface {
	Declaration() llm.FunctionDeclaration
	Execute(ctx context.Context, args map[string]any) (ToolResult, error)
}

// ToolFunc is the function signature for tool execution.
type ToolFunc func(ctx context.Context, args map[string]any) (ToolResult, error)

// FuncTool pairs a declaration with its executor.
type FuncTool struct {
	Decl llm.FunctionDeclaration
	Fn   ToolFunc
}

func (t *FuncTool) Declaration() llm.FunctionDeclaration { return t.Decl }

func (t *FuncTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	return t.Fn(ctx, args)
}

// ToolRegistry holds tools in registration order.
type ToolRegistry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool, or replaces the tool of the same name in place.
func (r *ToolRegistry) Register(tool Tool) {
	name := tool.Declaration().Name
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
}

// Unregister removes a tool from the registry.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return
	}
	delete(r.tools, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
}

// Get returns a registered tool by name, or nil if not found.
func (r *ToolRegistry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Declarations returns the tool declarations in registration order.
func (r *ToolRegistry) Declarations() []llm.FunctionDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	decls := make([]llm.FunctionDeclaration, 0, len(r.order))
	for _, name := range r.order {
		decls = append(decls, r.tools[name].Declaration())
	}
	return decls
}

// Names returns the names of all registered tools in registration order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// GetStringArg extracts a string argument from parsed tool arguments.
func GetStringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetIntArg extracts an integer argument from parsed tool arguments.
func GetIntArg(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// GetBoolArg extracts a boolean argument from parsed tool arguments.
func GetBoolArg(args map[string]any, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// GetStringSliceArg extracts a list of strings. Non-string items are skipped.
func GetStringSliceArg(args map[string]any, key string) ([]string, bool) {
	v, ok := args[key]
	if !ok {
		return nil, false
	}
	switch items := v.(type) {
	case []string:
		return items, true
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	default:
		return nil, false
	}
}
