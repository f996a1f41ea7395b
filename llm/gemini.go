// Google Gemini Provider implementation using the google.golang.org/genai SDK.
//
// Information Hiding:
// - Client creation errors deferred to first use
// - System instruction handling via config
// - Function call / function response mapping
// - Streaming via the SDK iterator

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider implements the Provider interface for Google Gemini.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
	initErr     error
}

// NewGeminiProvider creates a new Gemini provider.
// If client initialization fails, the error is returned on first use.
func NewGeminiProvider(apiKey, model string, maxTokens uint32, temperature float32) *GeminiProvider {
	p := &GeminiProvider{
		model:       model,
		maxTokens:   int32(maxTokens),
		temperature: temperature,
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		p.initErr = fmt.Errorf("failed to initialize Gemini client: %w", err)
		return p
	}
	p.client = client
	return p
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Model returns the current model.
func (p *GeminiProvider) Model() string {
	return p.model
}

// Chat sends a chat completion request.
func (p *GeminiProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return p.ChatWithFormat(ctx, messages, nil)
}

// ChatWithFormat sends a chat completion request, mapping a JSON object
// format to Gemini's JSON response MIME type.
func (p *GeminiProvider) ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (LLMResponse, error) {
	if err := p.ready(); err != nil {
		return LLMResponse{}, err
	}
	contents, config := p.request(messages, nil)
	if format != nil && format.Type == ResponseFormatJSONObject {
		config.ResponseMIMEType = "application/json"
	}
	return p.generate(ctx, contents, config)
}

// ChatWithTools sends a chat completion request with tool definitions.
func (p *GeminiProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	if err := p.ready(); err != nil {
		return LLMResponse{}, err
	}
	contents, config := p.request(messages, tools)
	return p.generate(ctx, contents, config)
}

// StreamWithTools streams a completion, collecting text and function calls
// across chunks.
func (p *GeminiProvider) StreamWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, onText TextFunc) (LLMResponse, error) {
	if err := p.ready(); err != nil {
		return LLMResponse{}, err
	}
	contents, config := p.request(messages, tools)

	var out LLMResponse
	var text strings.Builder
	for response, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, config) {
		if err != nil {
			return LLMResponse{}, fmt.Errorf("stream error: %w", err)
		}
		chunk := fromGeminiResponse(response, len(out.ToolCalls))
		if chunk.Content != "" {
			text.WriteString(chunk.Content)
			if onText != nil {
				onText(chunk.Content)
			}
		}
		out.ToolCalls = append(out.ToolCalls, chunk.ToolCalls...)
		if chunk.Usage != nil {
			out.Usage = chunk.Usage
		}
	}
	out.Content = text.String()
	return out, nil
}

func (p *GeminiProvider) ready() error {
	if p.initErr != nil {
		return p.initErr
	}
	if p.client == nil {
		return fmt.Errorf("gemini client not initialized")
	}
	return nil
}

func (p *GeminiProvider) request(messages []ChatMessage, tools []ToolDefinition) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents, systemInstruction := convertToGeminiContents(messages)
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(p.temperature),
		MaxOutputTokens: p.maxTokens,
		Tools:           convertToGeminiTools(tools),
	}
	if systemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}
	return contents, config
}

func (p *GeminiProvider) generate(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (LLMResponse, error) {
	response, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("chat completion failed: %w", err)
	}
	return fromGeminiResponse(response, 0), nil
}

// fromGeminiResponse converts one response (or stream chunk). offset numbers
// synthesized call IDs so they stay unique across chunks.
func fromGeminiResponse(response *genai.GenerateContentResponse, offset int) LLMResponse {
	var out LLMResponse
	if response == nil {
		return out
	}
	if len(response.Candidates) > 0 && response.Candidates[0].Content != nil {
		for _, part := range response.Candidates[0].Content.Parts {
			if part.Text != "" && !part.Thought {
				out.Content += part.Text
			}
			if fc := part.FunctionCall; fc != nil {
				args, err := json.Marshal(fc.Args)
				if err != nil || string(args) == "null" {
					args = []byte("{}")
				}
				id := fc.ID
				if id == "" {
					id = fmt.Sprintf("call_%d_%s", offset+len(out.ToolCalls), fc.Name)
				}
				out.ToolCalls = append(out.ToolCalls, ToolCall{ID: id, Name: fc.Name, Arguments: args})
			}
		}
	}
	if md := response.UsageMetadata; md != nil {
		out.Usage = &TokenUsage{
			PromptTokens:     uint32(md.PromptTokenCount),
			CompletionTokens: uint32(md.CandidatesTokenCount),
			TotalTokens:      uint32(md.TotalTokenCount),
		}
	}
	return out
}

func convertToGeminiContents(messages []ChatMessage) ([]*genai.Content, string) {
	var contents []*genai.Content
	var systemInstruction string

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			systemInstruction = msg.Content
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case RoleAssistant:
			content := &genai.Content{Role: genai.RoleModel}
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal(tc.Arguments, &args)
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args},
				})
			}
			if len(content.Parts) > 0 {
				contents = append(contents, content)
			}
		case RoleTool:
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       msg.ToolCallID,
						Name:     msg.Name,
						Response: map[string]any{"output": msg.Content},
					},
				}},
			})
		}
	}

	return contents, systemInstruction
}

func convertToGeminiTools(tools []ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGeminiSchema(t.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// toGeminiSchema converts a JSON Schema map into the SDK's schema type.
func toGeminiSchema(node map[string]any) *genai.Schema {
	schema := &genai.Schema{Type: genai.TypeObject}
	if t, ok := node["type"].(string); ok {
		schema.Type = geminiType(t)
	}
	if d, ok := node["description"].(string); ok {
		schema.Description = d
	}
	switch req := node["required"].(type) {
	case []string:
		schema.Required = req
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if props, ok := node["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if m, ok := prop.(map[string]any); ok {
				schema.Properties[name] = toGeminiSchema(m)
			}
		}
	}
	if schema.Type == genai.TypeArray {
		schema.Items = &genai.Schema{Type: genai.TypeString}
		if items, ok := node["items"].(map[string]any); ok {
			schema.Items = toGeminiSchema(items)
		}
	}
	return schema
}

func geminiType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// Verify GeminiProvider implements Provider
var _ Provider = (*GeminiProvider)(nil)
