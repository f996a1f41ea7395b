package api

import "github.com/richinex/agentrag/conversation"

// MaxMessageLength bounds ChatRequest.Message, counted in characters.
const MaxMessageLength = 10000

// ChatRequest is the body of POST /chat and POST /chat-stream.
type ChatRequest struct {
	Message             string                     `json:"message"`
	ConversationHistory []conversation.WireMessage `json:"conversation_history,omitempty"`
}

// ChatMetadata describes how a reply was produced.
type ChatMetadata struct {
	ResponseTimeMs int64    `json:"response_time_ms"`
	ToolsAvailable int      `json:"tools_available"`
	ToolsUsed      []string `json:"tools_used"`
	Iterations     int      `json:"iterations"`
}

// ChatResponse is the body of a successful POST /chat.
type ChatResponse struct {
	Message             string                     `json:"message"`
	ConversationHistory []conversation.WireMessage `json:"conversation_history"`
	Metadata            ChatMetadata               `json:"metadata"`
}

// ToolInfo names one registered tool.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ToolsResponse is the body of GET /tools.
type ToolsResponse struct {
	Tools []ToolInfo `json:"tools"`
	Total int        `json:"total"`
}

// RootResponse is the body of GET /.
type RootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
	Health  string `json:"health"`
	Info    string `json:"info"`
}

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error            string       `json:"error"`
	Detail           string       `json:"detail"`
	StatusCode       int          `json:"status_code"`
	Path             string       `json:"path,omitempty"`
	ValidationErrors []FieldError `json:"validation_errors,omitempty"`
}
