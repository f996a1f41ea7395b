// Package tools provides the tool system the agent dispatches to.
//
// Information Hiding:
// - Tool execution details hidden behind the Tool interface
// - Parameter schemas rendered to JSON Schema for the model and the validator
// - Backend errors folded into ToolResult so a failing tool never aborts a run
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/richinex/agentrag/llm"
)

// ErrNotFound is returned when a tool name does not resolve.
var ErrNotFound = errors.New("tool not found")

// InvocationError records a single tool failure. It is converted to
// tool-result text by the agent and never aborts a run.
type InvocationError struct {
	Tool string
	Err  error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("tool '%s' failed: %v", e.Tool, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// ToolParameter defines a parameter schema for a tool.
type ToolParameter struct {
	Name        string   `json:"name"`
	ParamType   string   `json:"param_type"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
}

// ToolMetadata describes what a tool does and how to call it.
type ToolMetadata struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	// InputSchema, when set, is a complete JSON Schema for the arguments
	// and takes precedence over Parameters in Schema.
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// String returns a string representation of the tool metadata.
func (m ToolMetadata) String() string {
	return fmt.Sprintf("%s: %s", m.Name, m.Description)
}

// Schema renders the parameters as a JSON Schema object.
func (m ToolMetadata) Schema() map[string]any {
	if schema := m.rawSchema(); schema != nil {
		return schema
	}
	properties := make(map[string]any, len(m.Parameters))
	var required []string
	for _, p := range m.Parameters {
		prop := map[string]any{"type": p.ParamType}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// rawSchema decodes InputSchema as an object schema, or returns nil when it
// is absent or not a JSON object.
func (m ToolMetadata) rawSchema() map[string]any {
	if len(m.InputSchema) == 0 {
		return nil
	}
	var schema map[string]any
	if err := json.Unmarshal(m.InputSchema, &schema); err != nil || schema == nil {
		return nil
	}
	delete(schema, "$schema")
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	return schema
}

// Definition returns the declaration sent to the model.
func (m ToolMetadata) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        m.Name,
		Description: m.Description,
		Parameters:  m.Schema(),
	}
}

// ToolResult represents the result of a tool execution.
// Success is determined by whether Error is nil.
type ToolResult struct {
	Output string `json:"output"`
	Error  error  `json:"-"`
}

// MarshalJSON reports success and, on failure, the error text.
func (t ToolResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Success bool   `json:"success"`
		Output  string `json:"output"`
		Error   string `json:"error,omitempty"`
	}{Success: t.Error == nil, Output: t.Output}
	if t.Error != nil {
		out.Error = t.Error.Error()
	}
	return json.Marshal(out)
}

// Success returns true if the tool execution succeeded.
func (t ToolResult) Success() bool {
	return t.Error == nil
}

// Text is what the model sees: the output, or "Error: ..." on failure.
func (t ToolResult) Text() string {
	if t.Error != nil {
		return "Error: " + t.Error.Error()
	}
	return t.Output
}

// SuccessResult creates a successful tool result.
func SuccessResult(output string) ToolResult {
	return ToolResult{Output: output}
}

// FailureResult creates a failed tool result.
func FailureResult(err error) ToolResult {
	return ToolResult{Error: err}
}

// FailureResultf creates a failed tool result with a formatted error message.
func FailureResultf(format string, args ...any) ToolResult {
	return ToolResult{Error: fmt.Errorf(format, args...)}
}

// Tool is the interface that all tools must implement.
type Tool interface {
	// Metadata returns tool metadata (name, description, parameters).
	Metadata() ToolMetadata

	// Execute runs the tool with given arguments. Backend failures should be
	// returned as a failed ToolResult; a non-nil error means the call itself
	// could not be made.
	Execute(ctx context.Context, args json.RawMessage) (ToolResult, error)

	// Validate validates arguments before execution.
	Validate(args json.RawMessage) error
}

// BaseTool provides a default implementation for Validate.
type BaseTool struct{}

// Validate provides a default no-op validation.
func (BaseTool) Validate(json.RawMessage) error {
	return nil
}

// ToolConfig holds tool execution configuration.
type ToolConfig struct {
	// Timeout bounds a single attempt. Zero means 30 seconds.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after a retryable failure.
	MaxRetries uint32
}

// AttemptTimeout returns the configured timeout, defaulting to 30 seconds.
func (c ToolConfig) AttemptTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultToolTimeout
	}
	return c.Timeout
}

// DefaultToolTimeout bounds a single tool attempt when none is configured.
const DefaultToolTimeout = 30 * time.Second

// DefaultToolConfig returns the default tool configuration.
func DefaultToolConfig() ToolConfig {
	return ToolConfig{Timeout: DefaultToolTimeout, MaxRetries: 1}
}

// decodeArgs unmarshals tool arguments, treating empty input as {}.
func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
