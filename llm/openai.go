// OpenAI Provider implementation using go-openai library.
//
// Information Hiding:
// - API endpoint and authentication (including OpenAI-compatible endpoints)
// - Request/response format for OpenAI Chat Completions API
// - Reassembly of streamed tool-call fragments by index

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DeepSeekBaseURL is the OpenAI-compatible DeepSeek endpoint.
const DeepSeekBaseURL = "https://api.deepseek.com/v1"

// OpenAIProvider implements the Provider interface for OpenAI and
// OpenAI-compatible APIs.
type OpenAIProvider struct {
	client      *openai.Client
	name        string
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	return &OpenAIProvider{
		client:      openai.NewClient(apiKey),
		name:        "openai",
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// NewOpenAICompatibleProvider creates a provider talking to an
// OpenAI-compatible endpoint such as DeepSeek.
func NewOpenAICompatibleProvider(name, baseURL, apiKey, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(config),
		name:        name,
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Model returns the current model.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Chat sends a chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return p.ChatWithFormat(ctx, messages, nil)
}

// ChatWithFormat sends a chat completion request with optional response format.
func (p *OpenAIProvider) ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (LLMResponse, error) {
	req := p.request(messages, nil)
	if format != nil {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatType(format.Type),
		}
	}
	return p.complete(ctx, req)
}

// ChatWithTools sends a chat completion request with tool definitions.
func (p *OpenAIProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	return p.complete(ctx, p.request(messages, tools))
}

// StreamWithTools streams a completion and reassembles tool calls.
func (p *OpenAIProvider) StreamWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, onText TextFunc) (LLMResponse, error) {
	req := p.request(messages, tools)
	req.Stream = true
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("stream creation failed: %w", err)
	}
	defer stream.Close()

	var content strings.Builder
	calls := make(map[int]*partialCall)
	var usage *TokenUsage

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return LLMResponse{}, fmt.Errorf("stream recv failed: %w", err)
		}

		if chunk.Usage != nil {
			usage = &TokenUsage{
				PromptTokens:     uint32(chunk.Usage.PromptTokens),
				CompletionTokens: uint32(chunk.Usage.CompletionTokens),
				TotalTokens:      uint32(chunk.Usage.TotalTokens),
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			content.WriteString(delta.Content)
			if onText != nil {
				onText(delta.Content)
			}
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			pc, ok := calls[idx]
			if !ok {
				pc = &partialCall{}
				calls[idx] = pc
			}
			if tc.ID != "" {
				pc.id = tc.ID
			}
			if tc.Function.Name != "" {
				pc.name = tc.Function.Name
			}
			pc.args.WriteString(tc.Function.Arguments)
		}
	}

	return LLMResponse{
		Content:   content.String(),
		ToolCalls: assembleCalls(calls),
		Usage:     usage,
	}, nil
}

func (p *OpenAIProvider) request(messages []ChatMessage, tools []ToolDefinition) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    convertToOpenAIMessages(messages),
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
		Tools:       convertToOpenAITools(tools),
	}
}

func (p *OpenAIProvider) complete(ctx context.Context, req openai.ChatCompletionRequest) (LLMResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("chat completion failed: %w", err)
	}

	var out LLMResponse
	if len(resp.Choices) > 0 {
		msg := resp.Choices[0].Message
		out.Content = msg.Content
		for _, tc := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: []byte(tc.Function.Arguments),
			})
		}
	}
	out.Usage = &TokenUsage{
		PromptTokens:     uint32(resp.Usage.PromptTokens),
		CompletionTokens: uint32(resp.Usage.CompletionTokens),
		TotalTokens:      uint32(resp.Usage.TotalTokens),
	}
	return out, nil
}

// partialCall accumulates one streamed tool call.
type partialCall struct {
	id   string
	name string
	args strings.Builder
}

func assembleCalls(calls map[int]*partialCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(calls))
	for idx := range calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	out := make([]ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		pc := calls[idx]
		args := pc.args.String()
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		out = append(out, ToolCall{ID: pc.id, Name: pc.name, Arguments: []byte(args)})
	}
	return out
}

func convertToOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		if msg.Role == RoleTool {
			oaiMsg.Name = msg.Name
		}
		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		result[i] = oaiMsg
	}
	return result
}

func convertToOpenAITools(tools []ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return result
}

// Verify OpenAIProvider implements Provider
var _ Provider = (*OpenAIProvider)(nil)
