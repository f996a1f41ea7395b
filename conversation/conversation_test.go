package conversation

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestFromWireToWireRoundTrip(t *testing.T) {
	wire := []WireMessage{
		{Role: "user", Content: "Hi"},
		{Role: "assistant", Content: "Hello! How can I help?"},
		{Role: "user", Content: "Who is client 3?"},
		{Role: "assistant", Content: ""},
	}

	c, err := FromWire(wire)
	if err != nil {
		t.Fatalf("FromWire failed: %v", err)
	}
	if got := ToWire(c); !reflect.DeepEqual(got, wire) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, wire)
	}
}

func TestFromWireRejectsUnknownRole(t *testing.T) {
	_, err := FromWire([]WireMessage{
		{Role: "user", Content: "ok"},
		{Role: "bogus", Content: "x"},
	})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.Field != "conversation_history[1].role" {
		t.Errorf("expected field conversation_history[1].role, got %q", verr.Field)
	}
	if verr.Type != "enum" {
		t.Errorf("expected type enum, got %q", verr.Type)
	}
}

func TestFromWireRejectsToolRole(t *testing.T) {
	if _, err := FromWire([]WireMessage{{Role: "tool", Content: "x"}}); err == nil {
		t.Error("tool results must not be accepted from clients")
	}
}

func TestFromWireRejectsInvalidUTF8(t *testing.T) {
	_, err := FromWire([]WireMessage{{Role: "user", Content: string([]byte{0xff, 0xfe})}})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "conversation_history[0].content" {
		t.Fatalf("expected content validation error, got %v", err)
	}
}

func TestFromWireSystemMustBeFirst(t *testing.T) {
	if _, err := FromWire([]WireMessage{{Role: "system", Content: "rules"}, {Role: "user", Content: "hi"}}); err != nil {
		t.Fatalf("leading system message should be accepted: %v", err)
	}

	_, err := FromWire([]WireMessage{{Role: "user", Content: "hi"}, {Role: "system", Content: "late"}})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.Field != "conversation_history[1].role" {
		t.Errorf("unexpected field %q", verr.Field)
	}
}

func TestToWireOmitsInternalMessages(t *testing.T) {
	c, err := New(
		System("be helpful"),
		User("count clients"),
		Assistant("", ToolCall{ID: "c1", Name: "get_business_client_count", Arguments: json.RawMessage(`{}`)}),
		ToolResult("c1", "get_business_client_count", "Total Business Clients: 25"),
		Assistant("There are 25 clients."),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	want := []WireMessage{
		{Role: "user", Content: "count clients"},
		{Role: "assistant", Content: "There are 25 clients."},
	}
	if got := ToWire(c); !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestAppendIsPersistent(t *testing.T) {
	base, err := New(User("one"))
	if err != nil {
		t.Fatal(err)
	}

	a, err := AppendUserTurn(base, "two")
	if err != nil {
		t.Fatal(err)
	}
	b, err := base.Append(Assistant("reply"))
	if err != nil {
		t.Fatal(err)
	}

	if base.Len() != 1 {
		t.Errorf("base was mutated: len %d", base.Len())
	}
	if last, _ := a.Last(); last.Content != "two" || last.Role != RoleUser {
		t.Errorf("unexpected last message of a: %+v", last)
	}
	if last, _ := b.Last(); last.Content != "reply" {
		t.Errorf("branch b observed a's append: %+v", last)
	}
}

func TestAppendToolResultMustAnswerPendingCall(t *testing.T) {
	c, err := New(User("q"), Assistant("", ToolCall{ID: "a"}, ToolCall{ID: "b"}))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		prepare func(Conversation) Conversation
		callID  string
		wantErr bool
	}{
		{"first answer", func(c Conversation) Conversation { return c }, "a", false},
		{"unknown id", func(c Conversation) Conversation { return c }, "zzz", true},
		{"empty id", func(c Conversation) Conversation { return c }, "", true},
		{"second answer", func(c Conversation) Conversation {
			c, _ = c.Append(ToolResult("a", "t", "x"))
			return c
		}, "b", false},
		{"duplicate answer", func(c Conversation) Conversation {
			c, _ = c.Append(ToolResult("a", "t", "x"))
			return c
		}, "a", true},
		{"after new user turn", func(c Conversation) Conversation {
			c, _ = c.Append(User("again"))
			return c
		}, "a", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.prepare(c).Append(ToolResult(tt.callID, "t", "out"))
			if tt.wantErr && !errors.Is(err, ErrOrphanToolResult) {
				t.Errorf("expected ErrOrphanToolResult, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestWithoutSystem(t *testing.T) {
	c, _ := New(System("rules"), User("hi"))
	if s, ok := c.System(); !ok || s != "rules" {
		t.Fatalf("expected system 'rules', got %q %v", s, ok)
	}
	rest := c.WithoutSystem()
	if rest.Len() != 1 {
		t.Fatalf("expected 1 message, got %d", rest.Len())
	}
	if _, ok := rest.System(); ok {
		t.Error("system message should be gone")
	}
}

func TestRoleString(t *testing.T) {
	for role, want := range map[Role]string{
		RoleUser: "user", RoleAssistant: "assistant", RoleSystem: "system", RoleTool: "tool", Role(0): "unknown",
	} {
		if got := role.String(); got != want {
			t.Errorf("Role(%d).String() = %q, want %q", role, got, want)
		}
	}
}
