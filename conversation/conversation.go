package conversation

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Ordering violations reported by Append.
var (
	ErrSystemNotFirst   = errors.New("system message must be the first message")
	ErrOrphanToolResult = errors.New("tool result does not answer a pending tool call")
)

// Conversation is an immutable, ordered message log. Append returns a new
// value; the receiver is never modified, so a Conversation can be shared
// between a request handler and the run it starts.
type Conversation struct {
	messages []Message
}

// New builds a conversation, checking every ordering invariant.
func New(messages ...Message) (Conversation, error) {
	var c Conversation
	for _, m := range messages {
		next, err := c.Append(m)
		if err != nil {
			return Conversation{}, err
		}
		c = next
	}
	return c, nil
}

// Append returns a new conversation with m at the end.
func (c Conversation) Append(m Message) (Conversation, error) {
	switch m.Role {
	case RoleSystem:
		if len(c.messages) > 0 {
			return c, ErrSystemNotFirst
		}
	case RoleTool:
		if !c.pending(m.ToolCallID) {
			return c, fmt.Errorf("%w: %q", ErrOrphanToolResult, m.ToolCallID)
		}
	case RoleUser, RoleAssistant:
	default:
		return c, fmt.Errorf("unknown role %d", m.Role)
	}

	// Full slice expression forces a copy on append so earlier values never
	// observe later messages.
	next := append(c.messages[:len(c.messages):len(c.messages)], m)
	return Conversation{messages: next}, nil
}

// pending reports whether id names a tool call from the latest tool-request
// message that has not been answered yet.
func (c Conversation) pending(id string) bool {
	if id == "" {
		return false
	}
	answered := make(map[string]bool)
	for i := len(c.messages) - 1; i >= 0; i-- {
		m := c.messages[i]
		switch {
		case m.Role == RoleTool:
			answered[m.ToolCallID] = true
		case m.IsToolRequest():
			for _, call := range m.ToolCalls {
				if call.ID == id {
					return !answered[id]
				}
			}
			return false
		default:
			return false
		}
	}
	return false
}

// Messages returns a copy of the messages in order.
func (c Conversation) Messages() []Message {
	return append([]Message(nil), c.messages...)
}

// Len returns the number of messages.
func (c Conversation) Len() int {
	return len(c.messages)
}

// Last returns the final message, if any.
func (c Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// System returns the leading system message content, if any.
func (c Conversation) System() (string, bool) {
	if len(c.messages) > 0 && c.messages[0].Role == RoleSystem {
		return c.messages[0].Content, true
	}
	return "", false
}

// WithoutSystem returns the conversation minus its leading system message.
func (c Conversation) WithoutSystem() Conversation {
	if _, ok := c.System(); ok {
		return Conversation{messages: c.messages[1:len(c.messages):len(c.messages)]}
	}
	return c
}

// AppendUserTurn appends a user message. The result always ends with a user
// message, which is what the dispatcher requires before a run.
func AppendUserTurn(c Conversation, text string) (Conversation, error) {
	if !utf8.ValidString(text) {
		return c, &ValidationError{Field: "message", Message: "must be valid UTF-8 text", Type: "type"}
	}
	return c.Append(User(text))
}

// WireMessage is the externally visible form of a message.
type WireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FromWire converts client-supplied history into a Conversation. It fails
// with a *ValidationError naming the offending entry's field.
func FromWire(entries []WireMessage) (Conversation, error) {
	var c Conversation
	for i, e := range entries {
		field := fmt.Sprintf("conversation_history[%d]", i)
		role, ok := ParseWireRole(e.Role)
		if !ok {
			return Conversation{}, invalidRole(field+".role", e.Role)
		}
		if !utf8.ValidString(e.Content) {
			return Conversation{}, &ValidationError{Field: field + ".content", Message: "must be valid UTF-8 text", Type: "type"}
		}
		next, err := c.Append(Message{Role: role, Content: e.Content})
		if err != nil {
			return Conversation{}, &ValidationError{Field: field + ".role", Message: err.Error(), Type: "order"}
		}
		c = next
	}
	return c, nil
}

// ToWire converts a conversation to its externally visible history. Only
// user messages and assistant messages without tool calls are included.
func ToWire(c Conversation) []WireMessage {
	out := make([]WireMessage, 0, len(c.messages))
	for _, m := range c.messages {
		switch {
		case m.Role == RoleUser:
			out = append(out, WireMessage{Role: "user", Content: m.Content})
		case m.Role == RoleAssistant && len(m.ToolCalls) == 0:
			out = append(out, WireMessage{Role: "assistant", Content: m.Content})
		}
	}
	return out
}
