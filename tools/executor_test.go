package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestExecutorSuccess(t *testing.T) {
	e := NewDefaultExecutor()
	tool := &stubTool{
		name:   "echo",
		params: []ToolParameter{{Name: "query", ParamType: "string", Required: true}},
		run: func(_ context.Context, args json.RawMessage) (ToolResult, error) {
			var a queryArgs
			json.Unmarshal(args, &a)
			return SuccessResult("echo: " + a.Query), nil
		},
	}

	res := e.Execute(context.Background(), tool, json.RawMessage(`{"query":"hi"}`))
	if !res.Success() || res.Output != "echo: hi" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestExecutorSchemaValidation(t *testing.T) {
	e := NewDefaultExecutor()
	var calls atomic.Int32
	tool := &stubTool{
		name:   "lookup",
		params: []ToolParameter{{Name: "client_id", ParamType: "integer", Required: true}},
		run: func(context.Context, json.RawMessage) (ToolResult, error) {
			calls.Add(1)
			return SuccessResult("found"), nil
		},
	}

	tests := []struct {
		name string
		args string
	}{
		{"missing required", `{}`},
		{"wrong type", `{"client_id":"seven"}`},
		{"not json", `{client_id}`},
		{"empty treated as object", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.Execute(context.Background(), tool, json.RawMessage(tt.args))
			if res.Success() {
				t.Fatal("expected validation failure")
			}
			var invErr *InvocationError
			if !errors.As(res.Error, &invErr) || invErr.Tool != "lookup" {
				t.Errorf("expected InvocationError for lookup, got %v", res.Error)
			}
		})
	}
	if calls.Load() != 0 {
		t.Errorf("tool ran %d times despite invalid args", calls.Load())
	}
}

func TestExecutorRecoversPanic(t *testing.T) {
	e := NewDefaultExecutor()
	tool := &stubTool{
		name: "crash",
		run: func(context.Context, json.RawMessage) (ToolResult, error) {
			panic("database exploded")
		},
	}

	res := e.Execute(context.Background(), tool, nil)
	if res.Success() {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Text(), "database exploded") {
		t.Errorf("expected panic message in %q", res.Text())
	}
}

func TestExecutorRetriesTransientFailure(t *testing.T) {
	e := NewExecutor(ToolConfig{Timeout: time.Second, MaxRetries: 1}, nil)
	var calls atomic.Int32
	tool := &stubTool{
		name: "flaky",
		run: func(context.Context, json.RawMessage) (ToolResult, error) {
			if calls.Add(1) == 1 {
				return FailureResultf("connection reset by peer"), nil
			}
			return SuccessResult("recovered"), nil
		},
	}

	res := e.Execute(context.Background(), tool, nil)
	if !res.Success() || res.Output != "recovered" {
		t.Fatalf("expected recovery, got %+v", res)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestExecutorDoesNotRetryPermanentFailure(t *testing.T) {
	e := NewExecutor(ToolConfig{Timeout: time.Second, MaxRetries: 3}, nil)
	var calls atomic.Int32
	tool := &stubTool{
		name: "strict",
		run: func(context.Context, json.RawMessage) (ToolResult, error) {
			calls.Add(1)
			return FailureResultf("record not found"), nil
		},
	}

	res := e.Execute(context.Background(), tool, nil)
	if res.Success() {
		t.Fatal("expected failure")
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", calls.Load())
	}
}

func TestExecutorTimeout(t *testing.T) {
	e := NewExecutor(ToolConfig{Timeout: 20 * time.Millisecond}, nil)
	tool := &stubTool{
		name: "slow",
		run: func(ctx context.Context, _ json.RawMessage) (ToolResult, error) {
			<-ctx.Done()
			return FailureResult(ctx.Err()), nil
		},
	}

	start := time.Now()
	res := e.Execute(context.Background(), tool, nil)
	if res.Success() {
		t.Fatal("expected timeout failure")
	}
	if !errors.Is(res.Error, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", res.Error)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("timeout took too long: %s", time.Since(start))
	}
}

func TestExecutorStopsOnCancel(t *testing.T) {
	e := NewExecutor(ToolConfig{Timeout: time.Second, MaxRetries: 5}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	tool := &stubTool{
		name: "cancelled",
		run: func(context.Context, json.RawMessage) (ToolResult, error) {
			calls.Add(1)
			cancel()
			return FailureResultf("network unreachable"), nil
		},
	}

	res := e.Execute(ctx, tool, nil)
	if res.Success() {
		t.Fatal("expected failure")
	}
	if calls.Load() != 1 {
		t.Errorf("expected no retry after cancel, got %d attempts", calls.Load())
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{context.DeadlineExceeded, true},
		{errors.New("HTTP 503 Service Unavailable"), true},
		{errors.New("temporary failure in name resolution"), true},
		{errors.New("invalid arguments"), false},
		{errors.New("something odd"), false},
	}

	for _, tt := range tests {
		if got := shouldRetry(tt.err); got != tt.want {
			t.Errorf("shouldRetry(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

type rawSchemaTool struct {
	BaseTool
}

func (rawSchemaTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "tag_customer",
		Description: "tag a customer",
		Parameters:  []ToolParameter{{Name: "labels", ParamType: "array", Required: true}},
		InputSchema: json.RawMessage(`{
			"$schema": "https://json-schema.org/draft/2020-12/schema",
			"properties": {"labels": {"type": "array", "items": {"type": "string"}, "minItems": 1}},
			"required": ["labels"]
		}`),
	}
}

func (rawSchemaTool) Execute(context.Context, json.RawMessage) (ToolResult, error) {
	return SuccessResult("tagged"), nil
}

func TestExecutorPrefersInputSchema(t *testing.T) {
	tool := rawSchemaTool{}

	schema := tool.Metadata().Schema()
	if schema["type"] != "object" {
		t.Errorf("expected object type, got %v", schema["type"])
	}
	if _, ok := schema["$schema"]; ok {
		t.Error("expected $schema to be dropped")
	}
	labels := schema["properties"].(map[string]any)["labels"].(map[string]any)
	if items, ok := labels["items"].(map[string]any); !ok || items["type"] != "string" {
		t.Errorf("items schema lost: %v", labels)
	}

	exec := NewDefaultExecutor()
	tests := []struct {
		args string
		ok   bool
	}{
		{`{"labels":["vip"]}`, true},
		{`{"labels":[]}`, false},
		{`{"labels":[1]}`, false},
		{`{"labels":"vip"}`, false},
	}
	for _, tt := range tests {
		res := exec.Execute(context.Background(), tool, json.RawMessage(tt.args))
		if res.Success() != tt.ok {
			t.Errorf("%s: success=%v, want %v (%s)", tt.args, res.Success(), tt.ok, res.Text())
		}
	}
}
