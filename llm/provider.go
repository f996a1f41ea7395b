// Package llm provides LLM provider abstractions.
//
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion, including tool calls
// - Incremental (streaming) assembly of text and tool calls

package llm

import (
	"context"
)

// TextFunc receives text fragments as a streaming completion produces them.
type TextFunc func(text string)

// Provider is the model capability the agent drives: given role-tagged
// messages and declared tools, produce either final content or tool calls,
// in blocking or streaming mode.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Chat sends a plain chat completion request.
	Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error)

	// ChatWithFormat sends a chat completion request with response format.
	// Providers without native format support ignore the hint.
	ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (LLMResponse, error)

	// ChatWithTools sends a chat completion request with tool definitions.
	ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error)

	// StreamWithTools is ChatWithTools in streaming mode. Text fragments are
	// passed to onText (which may be nil) as they arrive; the assembled
	// response is returned when the stream ends. Cancelling ctx aborts the
	// underlying connection.
	StreamWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, onText TextFunc) (LLMResponse, error)
}
