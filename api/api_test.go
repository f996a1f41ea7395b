package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/agentrag/agent"
	"github.com/richinex/agentrag/health"
	"github.com/richinex/agentrag/llm"
	"github.com/richinex/agentrag/llm/llmtest"
	"github.com/richinex/agentrag/retrieval"
	"github.com/richinex/agentrag/storage"
	"github.com/richinex/agentrag/tools"
)

type fixture struct {
	server   *Server
	provider *llmtest.Scripted
	repo     *storage.SqliteCustomers
}

func newFixture(t *testing.T, opts Options, steps ...llmtest.Step) *fixture {
	t.Helper()
	repo, err := storage.NewSqliteCustomersInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	_, err = storage.SeedSampleData(context.Background(), repo)
	require.NoError(t, err)

	provider := llmtest.New(steps...)
	svc := agent.NewService(agent.DefaultConfig(),
		func() (llm.Provider, error) { return provider, nil },
		[]agent.Source{agent.StaticSource("crm", tools.CRMTools(repo)...)}, nil)

	cfg := retrieval.DefaultConfig()
	cfg.Enabled = false
	checker := health.NewChecker(opts.Version,
		health.AgentCheck(svc),
		health.RetrievalCheck(retrieval.NewService(cfg, nil, nil)),
		health.DatabaseCheck(repo),
	)
	return &fixture{server: NewServer(svc, checker, opts, nil), provider: provider, repo: repo}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Version = "test"
	return opts
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestChatAnswersWithToolResult(t *testing.T) {
	f := newFixture(t, testOptions(),
		llmtest.Call("call_1", "get_business_client_count", map[string]any{}),
		llmtest.Final("You have 19 active business clients."),
	)

	rec := f.do(t, http.MethodPost, "/chat", `{"message":"How many active customers?"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[ChatResponse](t, rec)
	assert.Equal(t, "You have 19 active business clients.", resp.Message)
	assert.Equal(t, 5, resp.Metadata.ToolsAvailable)
	assert.Equal(t, []string{"get_business_client_count"}, resp.Metadata.ToolsUsed)
	assert.GreaterOrEqual(t, resp.Metadata.ResponseTimeMs, int64(0))

	require.Len(t, resp.ConversationHistory, 2)
	assert.Equal(t, "user", resp.ConversationHistory[0].Role)
	assert.Equal(t, "assistant", resp.ConversationHistory[1].Role)

	requests := f.provider.Requests()
	require.Len(t, requests, 2)
	last := requests[1][len(requests[1])-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Contains(t, last.Content, "Active Business Clients: 19")
}

func TestChatCarriesHistory(t *testing.T) {
	f := newFixture(t, testOptions(), llmtest.Final("Still 19."))

	rec := f.do(t, http.MethodPost, "/chat", `{
		"message": "And now?",
		"conversation_history": [
			{"role": "user", "content": "How many active customers?"},
			{"role": "assistant", "content": "19."}
		]
	}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[ChatResponse](t, rec)
	require.Len(t, resp.ConversationHistory, 4)
	assert.Equal(t, "And now?", resp.ConversationHistory[2].Content)
	assert.Equal(t, "Still 19.", resp.ConversationHistory[3].Content)
}

func TestChatValidation(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"bogus role", `{"message":"hi","conversation_history":[{"role":"bogus","content":"x"}]}`, "conversation_history[0].role"},
		{"missing message", `{}`, "message"},
		{"empty message", `{"message":""}`, "message"},
		{"too long", `{"message":"` + strings.Repeat("a", MaxMessageLength+1) + `"}`, "message"},
		{"wrong type", `{"message":42}`, "message"},
		{"missing content", `{"message":"hi","conversation_history":[{"role":"user"}]}`, "conversation_history[0].content"},
		{"invalid json", `{"message":`, "body"},
		{"system not first", `{"message":"hi","conversation_history":[{"role":"user","content":"a"},{"role":"system","content":"b"}]}`, "conversation_history[1].role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testOptions())

			rec := f.do(t, http.MethodPost, "/chat", tt.body)

			require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, "ValidationError", resp.Error)
			assert.Equal(t, "Request validation failed", resp.Detail)
			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
			require.NotEmpty(t, resp.ValidationErrors)
			assert.Equal(t, tt.wantField, resp.ValidationErrors[0].Field)
			assert.Empty(t, f.provider.Requests(), "model must not be called")
		})
	}
}

func TestChatMessageLengthCountsCharacters(t *testing.T) {
	f := newFixture(t, testOptions(), llmtest.Final("ok"))

	rec := f.do(t, http.MethodPost, "/chat", `{"message":"`+strings.Repeat("é", MaxMessageLength)+`"}`)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestChatServiceUnavailable(t *testing.T) {
	svc := agent.NewService(agent.DefaultConfig(), func() (llm.Provider, error) {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}, nil, nil)
	server := NewServer(svc, health.NewChecker("test", health.AgentCheck(svc)), testOptions(), nil)

	for _, path := range []string{"/chat", "/chat-stream"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"message":"hi"}`))
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		resp := decode[ErrorResponse](t, rec)
		assert.Equal(t, "ServiceUnavailable", resp.Error)
		assert.Contains(t, resp.Detail, "OPENAI_API_KEY is not set")
		assert.Equal(t, path, resp.Path)
	}
}

func TestChatModelFailureIsInternalError(t *testing.T) {
	f := newFixture(t, testOptions(), llmtest.Fail(errors.New("upstream 500")))

	rec := f.do(t, http.MethodPost, "/chat", `{"message":"hi"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "InternalServerError", resp.Error)
	assert.True(t, strings.HasPrefix(resp.Detail, "Error processing chat request: "), resp.Detail)
	assert.Contains(t, resp.Detail, "upstream 500")
}

func readFrames(t *testing.T, resp *http.Response) []agent.Event {
	t.Helper()
	var events []agent.Event
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		require.True(t, strings.HasPrefix(line, "data: "), "unexpected line %q", line)
		var ev agent.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestChatStreamFrames(t *testing.T) {
	f := newFixture(t, testOptions(),
		llmtest.Call("call_1", "get_business_client_count", map[string]any{}),
		llmtest.Final("There are 25 clients."),
	)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	resp, err := ts.Client().Post(ts.URL+"/chat-stream", "application/json", strings.NewReader(`{"message":"How many clients?"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

	events := readFrames(t, resp)
	types := make([]agent.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	assert.Equal(t, []agent.EventType{
		agent.EventStart, agent.EventAgent, agent.EventTool, agent.EventAgent, agent.EventEnd,
	}, types)
	assert.Equal(t, "There are 25 clients.", events[len(events)-1].Data["response"])
	assert.Equal(t, 2, f.provider.StreamedCalls())
}

func TestChatStreamModelFailureEndsWithErrorFrame(t *testing.T) {
	f := newFixture(t, testOptions(), llmtest.Fail(errors.New("upstream 500")))
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	resp, err := ts.Client().Post(ts.URL+"/chat-stream", "application/json", strings.NewReader(`{"message":"hi"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := readFrames(t, resp)
	require.Len(t, events, 2)
	assert.Equal(t, agent.EventStart, events[0].Type)
	assert.Equal(t, agent.EventError, events[1].Type)
	assert.Contains(t, events[1].Data["error"], "upstream 500")
}

func TestChatStreamValidationBeforeStreaming(t *testing.T) {
	f := newFixture(t, testOptions())

	rec := f.do(t, http.MethodPost, "/chat-stream", `{"message":""}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestHealthDegradedWithoutRetrieval(t *testing.T) {
	f := newFixture(t, testOptions(), llmtest.Final("ok"))
	// Initialize the agent so only the optional component is degraded.
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/chat", `{"message":"hi"}`).Code)

	rec := f.do(t, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[health.Report](t, rec)
	assert.Equal(t, health.Degraded, report.Status)
	assert.Equal(t, health.Healthy, report.Components["agent"].Status)
	assert.Equal(t, health.Degraded, report.Components["faiss"].Status)
	assert.Equal(t, health.Healthy, report.Components["database"].Status)
	assert.Equal(t, "test", report.Version)
}

func TestHealthUnhealthyStillAnswers200(t *testing.T) {
	f := newFixture(t, testOptions())
	f.repo.Close()

	rec := f.do(t, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, health.Unhealthy, decode[health.Report](t, rec).Status)
}

func TestToolsListing(t *testing.T) {
	f := newFixture(t, testOptions())

	rec := f.do(t, http.MethodGet, "/tools", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ToolsResponse](t, rec)
	assert.Equal(t, 5, resp.Total)
	require.Len(t, resp.Tools, 5)
	names := make([]string, len(resp.Tools))
	for i, tool := range resp.Tools {
		names[i] = tool.Name
		assert.NotEmpty(t, tool.Description)
	}
	assert.Contains(t, names, "get_business_client_count")
}

func TestToolsPrefixFilter(t *testing.T) {
	f := newFixture(t, testOptions())

	resp := decode[ToolsResponse](t, f.do(t, http.MethodGet, "/tools?prefix=get_business", ""))

	require.Equal(t, 3, resp.Total)
	assert.Equal(t, "get_business_client_by_email", resp.Tools[0].Name)
	assert.Equal(t, "get_business_client_by_id", resp.Tools[1].Name)
	assert.Equal(t, "get_business_client_count", resp.Tools[2].Name)
}

func TestRootAndInfo(t *testing.T) {
	f := newFixture(t, testOptions())

	root := decode[RootResponse](t, f.do(t, http.MethodGet, "/", ""))
	assert.Equal(t, "Agentic RAG REST API", root.Message)
	assert.Equal(t, "test", root.Version)

	info := decode[agent.Info](t, f.do(t, http.MethodGet, "/info", ""))
	assert.False(t, info.Initialized)
	assert.Equal(t, "uninitialized", info.State)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	f := newFixture(t, testOptions())

	rec := f.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", decode[ErrorResponse](t, rec).Error)

	rec = f.do(t, http.MethodGet, "/chat", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRateLimit(t *testing.T) {
	opts := testOptions()
	opts.RateLimit = true
	opts.RateLimitRPS = 0.001
	opts.RateLimitBurst = 1
	f := newFixture(t, opts)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/", "").Code)
	rec := f.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RateLimitExceeded", decode[ErrorResponse](t, rec).Error)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, testOptions())

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	f := newFixture(t, testOptions())
	opts := testOptions()
	opts.Addr = "127.0.0.1:0"
	server := NewServer(f.server.agents, f.server.checker, opts, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()
	cancel()

	assert.NoError(t, <-done)
}

func TestServeDrainsInFlightChat(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, testOptions(), llmtest.Step{
		Response: llm.LLMResponse{Content: "Done before shutdown."},
		Release:  release,
	})
	f.provider.Entered = make(chan struct{}, 1)
	require.NoError(t, f.server.agents.EnsureReady(context.Background()))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Serve(ctx, ln) }()

	type result struct {
		status int
		body   ChatResponse
		err    error
	}
	got := make(chan result, 1)
	go func() {
		resp, err := http.Post("http://"+ln.Addr().String()+"/chat", "application/json",
			strings.NewReader(`{"message":"finish this"}`))
		if err != nil {
			got <- result{err: err}
			return
		}
		defer resp.Body.Close()
		var body ChatResponse
		err = json.NewDecoder(resp.Body).Decode(&body)
		got <- result{status: resp.StatusCode, body: body, err: err}
	}()

	<-f.provider.Entered
	cancel()
	close(release)

	r := <-got
	require.NoError(t, r.err)
	assert.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, "Done before shutdown.", r.body.Message)
	assert.NoError(t, <-done)
}

type brokenWriter struct {
	header http.Header
}

func (b *brokenWriter) Header() http.Header       { return b.header }
func (b *brokenWriter) WriteHeader(int)           {}
func (b *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestWriteFailureUsesServerLogger(t *testing.T) {
	f := newFixture(t, testOptions())
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	server := NewServer(f.server.agents, f.server.checker, testOptions(), logger)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	server.Handler().ServeHTTP(&brokenWriter{header: http.Header{}}, req)

	assert.Contains(t, logs.String(), "failed to write response")
	assert.Contains(t, logs.String(), "connection reset")
	assert.Contains(t, logs.String(), "component=api")
}

func TestFieldPath(t *testing.T) {
	tests := map[string]string{
		"(root)":                      "",
		"message":                     "message",
		"conversation_history.1.role": "conversation_history[1].role",
		"conversation_history.12":     "conversation_history[12]",
	}
	for in, want := range tests {
		assert.Equal(t, want, fieldPath(in), in)
	}
}
