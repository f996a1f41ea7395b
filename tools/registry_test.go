package tools

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// Ignore known background goroutines from dependencies
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

// stubTool is a configurable Tool for tests.
type stubTool struct {
	BaseTool
	name   string
	params []ToolParameter
	run    func(ctx context.Context, args json.RawMessage) (ToolResult, error)
}

func (s *stubTool) Metadata() ToolMetadata {
	return ToolMetadata{Name: s.name, Description: "stub " + s.name, Parameters: s.params}
}

func (s *stubTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	if s.run == nil {
		return SuccessResult("ok"), nil
	}
	return s.run(ctx, args)
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{"wikipedia", "arxiv", "get_business_client_count"} {
		if err := r.Register(&stubTool{name: name}); err != nil {
			t.Fatalf("Register(%s) failed: %v", name, err)
		}
	}

	if r.Len() != 3 {
		t.Errorf("expected 3 tools, got %d", r.Len())
	}

	names := r.Names()
	want := []string{"wikipedia", "arxiv", "get_business_client_count"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %s, want %s", i, names[i], want[i])
		}
	}

	tool, err := r.Resolve("arxiv")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if tool.Metadata().Name != "arxiv" {
		t.Errorf("resolved wrong tool %s", tool.Metadata().Name)
	}
	if !r.Has("wikipedia") || r.Has("missing") {
		t.Error("Has returned wrong result")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubTool{name: "wikipedia"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(&stubTool{name: "wikipedia"}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if err := r.Register(&stubTool{name: ""}); err == nil {
		t.Fatal("expected empty name to fail")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 tool after rejected registrations, got %d", r.Len())
	}
}

func TestRegistryResolveNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistryDefinitions(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{
		name: "search_business_clients",
		params: []ToolParameter{
			{Name: "search_term", ParamType: "string", Description: "term", Required: true},
			{Name: "limit", ParamType: "integer"},
		},
	})
	r.Register(&stubTool{name: "get_business_client_count"})

	defs := r.Definitions()
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}

	schema := defs[0].Parameters
	if schema["type"] != "object" {
		t.Errorf("expected object schema, got %v", schema["type"])
	}
	required, ok := schema["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "search_term" {
		t.Errorf("unexpected required list %v", schema["required"])
	}

	if _, ok := defs[1].Parameters["required"]; ok {
		t.Error("parameterless tool should not declare required")
	}
}

func TestRegistryWithPrefix(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"get_business_client_count", "search_business_clients", "get_active_business_clients", "wikipedia"} {
		if err := r.Register(&stubTool{name: name}); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		prefix string
		want   []string
	}{
		{"get_", []string{"get_active_business_clients", "get_business_client_count"}},
		{"wiki", []string{"wikipedia"}},
		{"nothing", nil},
		{"", []string{"get_active_business_clients", "get_business_client_count", "search_business_clients", "wikipedia"}},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			var got []string
			for _, m := range r.WithPrefix(tt.prefix) {
				got = append(got, m.Name)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToolResultText(t *testing.T) {
	if got := SuccessResult("42").Text(); got != "42" {
		t.Errorf("success text = %q", got)
	}
	if got := FailureResultf("boom").Text(); got != "Error: boom" {
		t.Errorf("failure text = %q", got)
	}

	data, err := json.Marshal(FailureResultf("boom"))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"success":false,"output":"","error":"boom"}` {
		t.Errorf("unexpected JSON %s", data)
	}
}
