package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/richinex/agentrag/conversation"
)

const (
	maxBodyBytes = 1 << 20
	rootContext  = "(root)"
)

var chatRequestSchema = gojsonschema.NewGoLoader(map[string]any{
	"type":     "object",
	"required": []string{"message"},
	"properties": map[string]any{
		"message": map[string]any{
			"type":      "string",
			"minLength": 1,
			"maxLength": MaxMessageLength,
		},
		"conversation_history": map[string]any{
			"type": []string{"array", "null"},
			"items": map[string]any{
				"type":     "object",
				"required": []string{"role", "content"},
				"properties": map[string]any{
					"role":    map[string]any{"type": "string", "enum": conversation.WireRoles},
					"content": map[string]any{"type": "string"},
				},
			},
		},
	},
})

var compiledChatSchema = func() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(chatRequestSchema)
	if err != nil {
		panic(fmt.Sprintf("chat request schema: %v", err))
	}
	return s
}()

// requestError carries the field errors of a rejected request.
type requestError struct {
	fields []FieldError
}

func (e *requestError) Error() string {
	parts := make([]string, len(e.fields))
	for i, f := range e.fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return strings.Join(parts, "; ")
}

func fieldErr(field, message, typ string) *requestError {
	return &requestError{fields: []FieldError{{Field: field, Message: message, Type: typ}}}
}

// decodeChatRequest reads, validates and converts a chat request body.
func decodeChatRequest(w http.ResponseWriter, r *http.Request) (ChatRequest, conversation.Conversation, *requestError) {
	body, readErr := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if readErr != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(readErr, &tooLarge) {
			return ChatRequest{}, conversation.Conversation{}, fieldErr("body", fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), "size")
		}
		return ChatRequest{}, conversation.Conversation{}, fieldErr("body", readErr.Error(), "read")
	}

	res, err := compiledChatSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return ChatRequest{}, conversation.Conversation{}, fieldErr("body", "request body is not valid JSON", "json")
	}
	if !res.Valid() {
		return ChatRequest{}, conversation.Conversation{}, schemaErrors(res.Errors())
	}

	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return ChatRequest{}, conversation.Conversation{}, fieldErr("body", err.Error(), "json")
	}

	history, err := conversation.FromWire(req.ConversationHistory)
	if err != nil {
		var ve *conversation.ValidationError
		if errors.As(err, &ve) {
			return ChatRequest{}, conversation.Conversation{}, fieldErr(ve.Field, ve.Message, ve.Type)
		}
		return ChatRequest{}, conversation.Conversation{}, fieldErr("conversation_history", err.Error(), "value")
	}
	return req, history, nil
}

var indexSegment = regexp.MustCompile(`\.(\d+)`)

// fieldPath turns "conversation_history.1.role" into "conversation_history[1].role".
func fieldPath(field string) string {
	if field == rootContext {
		return ""
	}
	field = strings.TrimPrefix(field, rootContext+".")
	return indexSegment.ReplaceAllString(field, "[$1]")
}

func schemaErrors(errs []gojsonschema.ResultError) *requestError {
	out := &requestError{fields: make([]FieldError, 0, len(errs))}
	for _, re := range errs {
		field := fieldPath(re.Field())
		if re.Type() == "required" {
			if prop, ok := re.Details()["property"].(string); ok {
				if field == "" {
					field = prop
				} else {
					field += "." + prop
				}
			}
		}
		if field == "" {
			field = "body"
		}
		out.fields = append(out.fields, FieldError{
			Field:   field,
			Message: re.Description(),
			Type:    errorType(re.Type()),
		})
	}
	return out
}

func errorType(schemaType string) string {
	switch schemaType {
	case "required":
		return "missing"
	case "string_gte":
		return "min_length"
	case "string_lte":
		return "max_length"
	case "invalid_type":
		return "type"
	default:
		return schemaType
	}
}
