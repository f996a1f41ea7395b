// ReAct (Reason + Act) loop implementation.
//
// Both blocking and streaming runs go through the same loop; they differ
// only in the provider call mode and in whether steps are emitted.
//
// Information Hiding:
// - ReAct loop internals hidden
// - Message conversion between conversation and provider formats hidden
// - Concurrent tool execution and result ordering hidden

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/richinex/agentrag/conversation"
	"github.com/richinex/agentrag/llm"
	"github.com/richinex/agentrag/tools"
)

// maxParallelTools bounds concurrent tool calls within one step.
const maxParallelTools = 8

// errStopped ends a run whose stream consumer went away.
var errStopped = errors.New("stream consumer stopped")

// Agent runs the tool-calling loop against one provider and a fixed
// registry. Safe for concurrent use; runs share no state.
type Agent struct {
	config   Config
	provider llm.Provider
	registry *tools.Registry
	executor *tools.Executor
	logger   *slog.Logger
}

// New creates an agent over an already populated registry.
func New(config Config, provider llm.Provider, registry *tools.Registry, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if registry == nil {
		registry = tools.NewRegistry()
	}
	return &Agent{
		config:   config,
		provider: provider,
		registry: registry,
		executor: tools.NewExecutor(config.ToolConfig, logger),
		logger:   logger.With("agent", config.Name),
	}
}

// Config returns the agent configuration.
func (a *Agent) Config() Config {
	return a.config
}

// Registry returns the tools the agent can call.
func (a *Agent) Registry() *tools.Registry {
	return a.registry
}

// Model returns the model name of the provider.
func (a *Agent) Model() string {
	return a.provider.Model()
}

// ProviderName returns the provider name.
func (a *Agent) ProviderName() string {
	return a.provider.Name()
}

// Invoke runs the loop to completion for one user turn appended to history.
// Tool failures never abort the run; model failures return a *ModelError.
// There is no internal timeout: ctx governs the run.
func (a *Agent) Invoke(ctx context.Context, history conversation.Conversation, text string) (Result, error) {
	return a.run(ctx, history, text, false, func(Event) bool { return true })
}

func (a *Agent) run(ctx context.Context, history conversation.Conversation, text string, streaming bool, emit func(Event) bool) (Result, error) {
	start := time.Now()
	logger := a.logger.With("run_id", uuid.NewString())

	conv, err := a.prepare(history, text)
	if err != nil {
		return Result{}, err
	}

	defs := a.registry.Definitions()
	limit := a.config.iterationLimit()
	meta := Metadata{ToolsAvailable: a.registry.Len(), ToolCalls: []ToolCall{}}

	for iteration := 1; iteration <= limit; iteration++ {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("run cancelled: %w", err)
		}

		resp, err := a.callModel(ctx, toChatMessages(conv), defs, streaming)
		meta.LLMCalls++
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, fmt.Errorf("run cancelled: %w", ctx.Err())
			}
			logger.Error("model call failed", "iteration", iteration, "error", err)
			return Result{}, &ModelError{Provider: a.provider.Name(), Err: err}
		}
		meta.Iterations = iteration
		meta.TokenUsage.Add(resp.Usage)

		assistant := conversation.Assistant(resp.Content, normalizeCalls(resp.ToolCalls)...)
		if conv, err = conv.Append(assistant); err != nil {
			return Result{}, err
		}
		if !emit(agentEvent(assistant)) {
			return Result{}, errStopped
		}

		if !assistant.IsToolRequest() {
			meta.ElapsedMs = uint64(time.Since(start).Milliseconds())
			logger.Info("run complete",
				"iterations", iteration, "tool_calls", len(meta.ToolCalls), "elapsed_ms", meta.ElapsedMs)
			return Result{Message: resp.Content, Conversation: conv, Metadata: meta}, nil
		}

		logger.Debug("dispatching tool calls", "iteration", iteration, "calls", len(assistant.ToolCalls))
		for _, out := range a.dispatch(ctx, assistant.ToolCalls) {
			if conv, err = conv.Append(out.message); err != nil {
				return Result{}, err
			}
			meta.ToolCalls = append(meta.ToolCalls, out.record)
			if !emit(toolEvent(out.message)) {
				return Result{}, errStopped
			}
		}
	}

	logger.Warn("iteration limit reached", "limit", limit)
	return Result{}, &ModelError{
		Provider: a.provider.Name(),
		Err:      fmt.Errorf("%w (limit %d)", ErrMaxIterations, limit),
	}
}

// prepare builds the outgoing conversation: the merged system prompt, the
// history without its own system entry, then the new user turn.
func (a *Agent) prepare(history conversation.Conversation, text string) (conversation.Conversation, error) {
	fromHistory, _ := history.System()

	var conv conversation.Conversation
	if system := mergeSystemPrompt(a.config.SystemPrompt, fromHistory); system != "" {
		conv, _ = conv.Append(conversation.System(system))
	}
	for _, m := range history.WithoutSystem().Messages() {
		next, err := conv.Append(m)
		if err != nil {
			return conversation.Conversation{}, err
		}
		conv = next
	}
	return conversation.AppendUserTurn(conv, text)
}

func (a *Agent) callModel(ctx context.Context, msgs []llm.ChatMessage, defs []llm.ToolDefinition, streaming bool) (llm.LLMResponse, error) {
	if streaming {
		return a.provider.StreamWithTools(ctx, msgs, defs, nil)
	}
	return a.provider.ChatWithTools(ctx, msgs, defs)
}

type toolOutcome struct {
	message conversation.Message
	record  ToolCall
}

// dispatch runs every call of one step concurrently. Outcomes keep the
// order of calls.
func (a *Agent) dispatch(ctx context.Context, calls []conversation.ToolCall) []toolOutcome {
	out := make([]toolOutcome, len(calls))
	var g errgroup.Group
	g.SetLimit(maxParallelTools)
	for i, call := range calls {
		g.Go(func() error {
			out[i] = a.runTool(ctx, call)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// runTool executes one call. Every failure becomes tool-result text.
func (a *Agent) runTool(ctx context.Context, call conversation.ToolCall) toolOutcome {
	start := time.Now()

	var text string
	success := false
	tool, err := a.registry.Resolve(call.Name)
	if err != nil {
		a.logger.Warn("model requested unknown tool", "tool", call.Name)
		text = fmt.Sprintf("Error: tool '%s' is not available", call.Name)
	} else {
		res := a.executor.Execute(ctx, tool, call.Arguments)
		text = res.Text()
		success = res.Success()
	}

	return toolOutcome{
		message: conversation.ToolResult(call.ID, call.Name, text),
		record: ToolCall{
			ID:         call.ID,
			Name:       call.Name,
			InputSize:  len(call.Arguments),
			OutputSize: len(text),
			DurationMs: uint64(time.Since(start).Milliseconds()),
			Success:    success,
		},
	}
}

// normalizeCalls gives every call a unique id and non-empty arguments.
// Tool results are correlated by id, so a missing or repeated id from the
// provider is replaced.
func normalizeCalls(calls []llm.ToolCall) []conversation.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(calls))
	out := make([]conversation.ToolCall, len(calls))
	for i, c := range calls {
		id := c.ID
		if id == "" || seen[id] {
			id = "call_" + uuid.NewString()
		}
		seen[id] = true

		args := c.Arguments
		if len(bytes.TrimSpace(args)) == 0 {
			args = json.RawMessage("{}")
		}
		out[i] = conversation.ToolCall{ID: id, Name: c.Name, Arguments: args}
	}
	return out
}

func toChatMessages(c conversation.Conversation) []llm.ChatMessage {
	msgs := c.Messages()
	out := make([]llm.ChatMessage, len(msgs))
	for i, m := range msgs {
		cm := llm.ChatMessage{
			Role:       m.Role.String(),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, call := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, llm.ToolCall{ID: call.ID, Name: call.Name, Arguments: call.Arguments})
		}
		out[i] = cm
	}
	return out
}
