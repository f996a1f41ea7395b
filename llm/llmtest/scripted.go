// Package llmtest provides a deterministic llm.Provider for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/richinex/agentrag/llm"
)

// ErrScriptExhausted is returned when the provider is called more times than
// it has scripted steps.
var ErrScriptExhausted = errors.New("llmtest: script exhausted")

// Step is one scripted model turn.
type Step struct {
	Response llm.LLMResponse
	Err      error
	// Chunks are fed to the streaming callback before the response returns.
	Chunks []string
	// Block makes the call wait until its context is cancelled.
	Block bool
	// Release, if set, holds the call until it is closed or the context ends.
	Release <-chan struct{}
}

// Final scripts a terminal answer.
func Final(content string) Step {
	return Step{Response: llm.LLMResponse{Content: content}, Chunks: []string{content}}
}

// Call scripts a single tool call.
func Call(id, name string, args any) Step {
	return Calls(llm.ToolCall{ID: id, Name: name, Arguments: mustJSON(args)})
}

// Calls scripts several tool calls in one turn.
func Calls(calls ...llm.ToolCall) Step {
	return Step{Response: llm.LLMResponse{ToolCalls: calls}}
}

// Fail scripts a model-capability failure.
func Fail(err error) Step {
	return Step{Err: err}
}

// ToolCall builds an llm.ToolCall with JSON-encoded args.
func ToolCall(id, name string, args any) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: mustJSON(args)}
}

// Scripted replays steps in order, one per model call, and records what it
// was sent. Safe for concurrent use.
type Scripted struct {
	mu       sync.Mutex
	steps    []Step
	requests [][]llm.ChatMessage
	tools    [][]llm.ToolDefinition
	streamed int
	// Entered, if set, receives a value each time a call starts.
	Entered chan struct{}
}

// New returns a provider that replays steps.
func New(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

// Name returns "scripted".
func (s *Scripted) Name() string { return "scripted" }

// Model returns "scripted-model".
func (s *Scripted) Model() string { return "scripted-model" }

// Chat replays the next step without tools.
func (s *Scripted) Chat(ctx context.Context, messages []llm.ChatMessage) (llm.LLMResponse, error) {
	return s.next(ctx, messages, nil, nil, false)
}

// ChatWithFormat replays the next step, ignoring format.
func (s *Scripted) ChatWithFormat(ctx context.Context, messages []llm.ChatMessage, _ *llm.ResponseFormat) (llm.LLMResponse, error) {
	return s.next(ctx, messages, nil, nil, false)
}

// ChatWithTools replays the next step.
func (s *Scripted) ChatWithTools(ctx context.Context, messages []llm.ChatMessage, tools []llm.ToolDefinition) (llm.LLMResponse, error) {
	return s.next(ctx, messages, tools, nil, false)
}

// StreamWithTools replays the next step, feeding its chunks to onText.
func (s *Scripted) StreamWithTools(ctx context.Context, messages []llm.ChatMessage, tools []llm.ToolDefinition, onText llm.TextFunc) (llm.LLMResponse, error) {
	return s.next(ctx, messages, tools, onText, true)
}

func (s *Scripted) next(ctx context.Context, messages []llm.ChatMessage, tools []llm.ToolDefinition, onText llm.TextFunc, streaming bool) (llm.LLMResponse, error) {
	s.mu.Lock()
	s.requests = append(s.requests, append([]llm.ChatMessage(nil), messages...))
	s.tools = append(s.tools, tools)
	if streaming {
		s.streamed++
	}
	if len(s.steps) == 0 {
		s.mu.Unlock()
		return llm.LLMResponse{}, ErrScriptExhausted
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	entered := s.Entered
	s.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if step.Block {
		<-ctx.Done()
		return llm.LLMResponse{}, ctx.Err()
	}
	if step.Release != nil {
		select {
		case <-step.Release:
		case <-ctx.Done():
		}
	}
	if err := ctx.Err(); err != nil {
		return llm.LLMResponse{}, err
	}
	if step.Err != nil {
		return llm.LLMResponse{}, step.Err
	}
	if onText != nil {
		for _, chunk := range step.Chunks {
			onText(chunk)
		}
	}
	return step.Response, nil
}

// Requests returns a copy of every message list the provider received.
func (s *Scripted) Requests() [][]llm.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]llm.ChatMessage(nil), s.requests...)
}

// Tools returns the tool definitions sent with each call.
func (s *Scripted) Tools() [][]llm.ToolDefinition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]llm.ToolDefinition(nil), s.tools...)
}

// StreamedCalls reports how many calls used streaming mode.
func (s *Scripted) StreamedCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamed
}

// Remaining reports how many scripted steps are left.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

func mustJSON(v any) json.RawMessage {
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

var _ llm.Provider = (*Scripted)(nil)
