// Tool Registry.
//
// Information Hiding:
// - Tool storage and lookup implementation hidden
// - Registration order preserved for display; lookup by name
// - Prefix queries served by a radix tree over tool names

package tools

import (
	"fmt"
	"sync"

	"github.com/armon/go-radix"

	"github.com/richinex/agentrag/llm"
)

// Registry holds a fixed set of named tools. It is populated during service
// initialization and only read afterwards.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
	names *radix.Tree
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
		names: radix.New(),
	}
}

// Register adds a new tool to the registry.
// Returns error if a tool with the same name already exists.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Metadata().Name
	if name == "" {
		return fmt.Errorf("tool has an empty name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool '%s' already registered", name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	r.names.Insert(name, tool)
	return nil
}

// Resolve returns the named tool or an error wrapping ErrNotFound.
func (r *Registry) Resolve(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrNotFound, name)
	}
	return tool, nil
}

// Has checks if a tool exists in the registry.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tools[name]
	return exists
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// List returns the tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Metadata returns metadata for all tools in registration order.
func (r *Registry) Metadata() []ToolMetadata {
	list := r.List()
	out := make([]ToolMetadata, len(list))
	for i, t := range list {
		out[i] = t.Metadata()
	}
	return out
}

// Definitions returns the tool declarations sent to the model.
func (r *Registry) Definitions() []llm.ToolDefinition {
	list := r.List()
	out := make([]llm.ToolDefinition, len(list))
	for i, t := range list {
		out[i] = t.Metadata().Definition()
	}
	return out
}

// WithPrefix returns metadata for tools whose names start with prefix,
// sorted by name. An empty prefix matches every tool.
func (r *Registry) WithPrefix(prefix string) []ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ToolMetadata
	r.names.WalkPrefix(prefix, func(_ string, v any) bool {
		out = append(out, v.(Tool).Metadata())
		return false
	})
	return out
}
