// Agent builder for fluent configuration.
//
// Information Hiding:
// - Builder state management hidden
// - Registry population and duplicate detection hidden

package agent

import (
	"fmt"
	"log/slog"

	"github.com/richinex/agentrag/llm"
	"github.com/richinex/agentrag/tools"
)

// Builder provides fluent configuration for creating agents.
// Usage: agent.NewBuilder("name").
type Builder struct {
	config Config
	tools  []tools.Tool
	logger *slog.Logger
}

// NewBuilder creates a new agent builder with the given name.
func NewBuilder(name string) *Builder {
	config := DefaultConfig()
	if name != "" {
		config.Name = name
	}
	return &Builder{config: config}
}

// SystemPrompt sets the agent's system prompt.
func (b *Builder) SystemPrompt(prompt string) *Builder {
	b.config.SystemPrompt = prompt
	return b
}

// MaxIterations sets the per-run iteration cap.
func (b *Builder) MaxIterations(n int) *Builder {
	b.config.MaxIterations = n
	return b
}

// ToolConfig sets the tool execution configuration.
func (b *Builder) ToolConfig(config tools.ToolConfig) *Builder {
	b.config.ToolConfig = config
	return b
}

// Logger sets the logger used by the agent and its executor.
func (b *Builder) Logger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Tool adds a tool to the agent.
func (b *Builder) Tool(tool tools.Tool) *Builder {
	b.tools = append(b.tools, tool)
	return b
}

// Tools adds multiple tools at once.
func (b *Builder) Tools(toolList []tools.Tool) *Builder {
	b.tools = append(b.tools, toolList...)
	return b
}

// ToolCount returns the number of tools added so far.
func (b *Builder) ToolCount() int {
	return len(b.tools)
}

// Config returns the configuration the builder would produce.
func (b *Builder) Config() Config {
	return b.config
}

// Build registers the tools in a fresh registry and returns the agent.
// Two tools with the same name are an error.
func (b *Builder) Build(provider llm.Provider) (*Agent, error) {
	if provider == nil {
		return nil, fmt.Errorf("agent '%s' has no model provider", b.config.Name)
	}
	registry := tools.NewRegistry()
	for _, tool := range b.tools {
		if err := registry.Register(tool); err != nil {
			return nil, fmt.Errorf("failed to register tool: %w", err)
		}
	}
	return New(b.config, provider, registry, b.logger), nil
}
