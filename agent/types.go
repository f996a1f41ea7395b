// Package agent provides the tool-calling ReAct agent, its streaming
// adapter and the process-wide service that owns it.
//
// Contains the result, metadata and event types shared by Invoke and Stream.
package agent

import (
	"github.com/richinex/agentrag/conversation"
	"github.com/richinex/agentrag/llm"
)

// ToolCall contains metrics about a tool invocation.
type ToolCall struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	InputSize  int    `json:"input_size"`
	OutputSize int    `json:"output_size"`
	DurationMs uint64 `json:"duration_ms"`
	Success    bool   `json:"success"`
}

// Metadata contains metadata about a run.
type Metadata struct {
	ElapsedMs      uint64         `json:"elapsed_ms"`
	ToolsAvailable int            `json:"tools_available"`
	Iterations     int            `json:"iterations"`
	ToolCalls      []ToolCall     `json:"tool_calls"`
	TokenUsage     llm.TokenUsage `json:"token_usage"`
	LLMCalls       int            `json:"llm_calls"`
}

// Result is the outcome of a completed run.
type Result struct {
	// Message is the final assistant content.
	Message string
	// Conversation holds the prior history followed by every turn of the
	// run, including intermediate tool calls and their results.
	Conversation conversation.Conversation
	Metadata     Metadata
}

// EventType tags a stream Event.
type EventType string

const (
	EventStart EventType = "start"
	EventAgent EventType = "agent"
	EventTool  EventType = "tool"
	EventEnd   EventType = "end"
	EventError EventType = "error"
)

// Event is one step of a streamed run.
type Event struct {
	Type EventType      `json:"event"`
	Data map[string]any `json:"data"`
}

// Terminal reports whether no event can follow e.
func (e Event) Terminal() bool {
	return e.Type == EventEnd || e.Type == EventError
}

func startEvent() Event {
	return Event{Type: EventStart, Data: map[string]any{"message": "Streaming started"}}
}

func endEvent(r Result) Event {
	return Event{Type: EventEnd, Data: map[string]any{
		"message":          "Streaming complete",
		"response":         r.Message,
		"iterations":       r.Metadata.Iterations,
		"tools_used":       toolsUsed(r.Metadata.ToolCalls),
		"response_time_ms": r.Metadata.ElapsedMs,
	}}
}

func errorEvent(err error) Event {
	return Event{Type: EventError, Data: map[string]any{"error": err.Error()}}
}

// agentEvent reports an assistant message, with any tool calls it made.
func agentEvent(m conversation.Message) Event {
	msg := map[string]any{"type": "ai", "content": m.Content}
	if len(m.ToolCalls) > 0 {
		calls := make([]map[string]any, len(m.ToolCalls))
		for i, c := range m.ToolCalls {
			calls[i] = map[string]any{"id": c.ID, "name": c.Name, "args": c.Arguments}
		}
		msg["tool_calls"] = calls
	}
	return Event{Type: EventAgent, Data: map[string]any{"messages": []map[string]any{msg}}}
}

// toolEvent reports one tool result.
func toolEvent(m conversation.Message) Event {
	msg := map[string]any{
		"type":         "tool",
		"name":         m.Name,
		"tool_call_id": m.ToolCallID,
		"content":      m.Content,
	}
	return Event{Type: EventTool, Data: map[string]any{"messages": []map[string]any{msg}}}
}

// toolsUsed lists distinct tool names in first-call order.
func toolsUsed(calls []ToolCall) []string {
	seen := make(map[string]bool, len(calls))
	out := []string{}
	for _, c := range calls {
		if !seen[c.Name] {
			seen[c.Name] = true
			out = append(out, c.Name)
		}
	}
	return out
}
