// Package conversation models the ordered, role-tagged message log a single
// chat request carries, and its conversion to and from the wire format.
//
// Information Hiding:
// - Role parsing and validation hidden behind FromWire
// - Ordering invariants enforced on every Append
// - Internal reasoning messages filtered out by ToWire
package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role tags a Message.
type Role int

const (
	// RoleUser is a human turn.
	RoleUser Role = iota + 1
	// RoleAssistant is a model turn, possibly carrying tool calls.
	RoleAssistant
	// RoleSystem is an instruction message. At most one, always first.
	RoleSystem
	// RoleTool is a tool result answering one earlier tool call.
	RoleTool
)

// String returns the wire spelling of the role.
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	case RoleSystem:
		return "system"
	case RoleTool:
		return "tool"
	default:
		return "unknown"
	}
}

// WireRoles lists the roles accepted from clients.
var WireRoles = []string{"user", "assistant", "system"}

// ParseWireRole maps a client-supplied role string to a Role. Only the roles
// in WireRoles are accepted; tool results are never client-supplied.
func ParseWireRole(s string) (Role, bool) {
	switch s {
	case "user":
		return RoleUser, true
	case "assistant":
		return RoleAssistant, true
	case "system":
		return RoleSystem, true
	default:
		return 0, false
	}
}

// ToolCall is a model request to run a named tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"args"`
}

// Message is one turn in a conversation.
type Message struct {
	Role    Role
	Content string
	// ToolCalls is set on assistant messages that request tools.
	ToolCalls []ToolCall
	// ToolCallID and Name are set on tool messages.
	ToolCallID string
	Name       string
}

// User returns a user message.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant returns an assistant message with optional tool calls.
func Assistant(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// System returns a system message.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// ToolResult returns a tool message answering the call with the given id.
func ToolResult(callID, name, content string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Name: name, Content: content}
}

// IsToolRequest reports whether m is an assistant message asking for tools.
func (m Message) IsToolRequest() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// ValidationError reports a user-correctable problem with one field.
type ValidationError struct {
	Field   string
	Message string
	// Type is a short machine-readable class, e.g. "enum" or "type".
	Type string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalidRole(field, got string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("role %q is not one of %s", got, strings.Join(WireRoles, ", ")),
		Type:    "enum",
	}
}
