package agent

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/richinex/agentrag/conversation"
	"github.com/richinex/agentrag/llm/llmtest"
)

func collect(ctx context.Context, a *Agent, text string) []Event {
	var events []Event
	for ev := range a.Stream(ctx, conversation.Conversation{}, text) {
		events = append(events, ev)
	}
	return events
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestStreamOneToolCall(t *testing.T) {
	provider := llmtest.New(
		llmtest.Call("c1", "get_business_client_count", map[string]any{}),
		llmtest.Final("There are 25 clients."),
	)
	a := newAgent(t, provider, echoTool("get_business_client_count", "Total Business Clients: 25"))

	events := collect(context.Background(), a, "How many clients?")

	want := []EventType{EventStart, EventAgent, EventTool, EventAgent, EventEnd}
	if got := eventTypes(events); !reflect.DeepEqual(got, want) {
		t.Fatalf("event order %v, want %v", got, want)
	}
	if events[0].Data["message"] != "Streaming started" {
		t.Errorf("unexpected start payload %v", events[0].Data)
	}

	call := events[1].Data["messages"].([]map[string]any)[0]
	if calls, ok := call["tool_calls"].([]map[string]any); !ok || calls[0]["name"] != "get_business_client_count" {
		t.Errorf("agent event missing tool call: %v", call)
	}
	result := events[2].Data["messages"].([]map[string]any)[0]
	if result["tool_call_id"] != "c1" || result["content"] != "Total Business Clients: 25" {
		t.Errorf("unexpected tool event %v", result)
	}

	end := events[4].Data
	if end["message"] != "Streaming complete" || end["response"] != "There are 25 clients." {
		t.Errorf("unexpected end payload %v", end)
	}
	if provider.StreamedCalls() != 2 {
		t.Errorf("expected 2 streaming model calls, got %d", provider.StreamedCalls())
	}
}

func TestStreamModelFailureEndsWithError(t *testing.T) {
	provider := llmtest.New(llmtest.Fail(errors.New("upstream 500")))
	a := newAgent(t, provider)

	events := collect(context.Background(), a, "hi")

	want := []EventType{EventStart, EventError}
	if got := eventTypes(events); !reflect.DeepEqual(got, want) {
		t.Fatalf("event order %v, want %v", got, want)
	}
	if msg, _ := events[1].Data["error"].(string); !strings.Contains(msg, "upstream 500") {
		t.Errorf("unexpected error payload %v", events[1].Data)
	}
}

func TestStreamExactlyOneTerminalEvent(t *testing.T) {
	scripts := map[string][]llmtest.Step{
		"final": {llmtest.Final("ok")},
		"tools": {llmtest.Call("1", "echo", map[string]any{}), llmtest.Final("ok")},
		"fail":  {llmtest.Call("1", "echo", map[string]any{}), llmtest.Fail(errors.New("boom"))},
		"limit": {llmtest.Call("1", "echo", nil), llmtest.Call("2", "echo", nil), llmtest.Call("3", "echo", nil)},
	}
	for name, steps := range scripts {
		t.Run(name, func(t *testing.T) {
			a, err := NewBuilder("test").MaxIterations(2).Tool(echoTool("echo", "e")).Build(llmtest.New(steps...))
			if err != nil {
				t.Fatal(err)
			}
			events := collect(context.Background(), a, "go")

			if events[0].Type != EventStart {
				t.Errorf("first event is %s", events[0].Type)
			}
			terminals := 0
			for i, ev := range events {
				if ev.Terminal() {
					terminals++
					if i != len(events)-1 {
						t.Errorf("event %d follows the terminal event", i+1)
					}
				}
			}
			if terminals != 1 {
				t.Errorf("expected one terminal event, got %d", terminals)
			}
		})
	}
}

func TestStreamConsumerBreakStopsRun(t *testing.T) {
	provider := llmtest.New(
		llmtest.Call("1", "echo", map[string]any{}),
		llmtest.Final("never requested"),
	)
	a := newAgent(t, provider, echoTool("echo", "e"))

	seen := 0
	for ev := range a.Stream(context.Background(), conversation.Conversation{}, "go") {
		seen++
		if ev.Type == EventAgent {
			break
		}
	}

	if seen != 2 {
		t.Errorf("expected to stop after 2 events, saw %d", seen)
	}
	if provider.Remaining() != 1 {
		t.Errorf("run continued after break: %d steps left", provider.Remaining())
	}
}

func TestStreamCancelledByClient(t *testing.T) {
	provider := llmtest.New(llmtest.Step{Block: true})
	provider.Entered = make(chan struct{}, 1)
	a := newAgent(t, provider)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-provider.Entered
		cancel()
	}()

	events := collect(ctx, a, "wait")
	if last := events[len(events)-1]; last.Type != EventError {
		t.Fatalf("expected error event after cancel, got %s", last.Type)
	}
}

func TestStreamIsRestartable(t *testing.T) {
	provider := llmtest.New(llmtest.Final("one"), llmtest.Final("two"))
	a := newAgent(t, provider)

	seq := a.Stream(context.Background(), conversation.Conversation{}, "again")
	var answers []any
	for range 2 {
		for ev := range seq {
			if ev.Type == EventEnd {
				answers = append(answers, ev.Data["response"])
			}
		}
	}
	if !reflect.DeepEqual(answers, []any{"one", "two"}) {
		t.Errorf("each iteration should start a fresh run, got %v", answers)
	}
}
