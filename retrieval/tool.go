package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/vectorstores"

	"github.com/richinex/agentrag/tools"
)

// RetrieverTool answers a query with the most similar indexed chunks.
type RetrieverTool struct {
	tools.BaseTool
	name        string
	description string
	retriever   vectorstores.Retriever
}

// NewRetrieverTool exposes the top k chunks of store as a tool.
func NewRetrieverTool(name, description string, store vectorstores.VectorStore, k int) *RetrieverTool {
	return &RetrieverTool{
		name:        name,
		description: description,
		retriever:   vectorstores.ToRetriever(store, k),
	}
}

// Metadata returns the tool metadata.
func (t *RetrieverTool) Metadata() tools.ToolMetadata {
	return tools.ToolMetadata{
		Name:        t.name,
		Description: t.description,
		Parameters: []tools.ToolParameter{
			{Name: "query", ParamType: "string", Description: "query to look up in retriever", Required: true},
		},
	}
}

type retrieverArgs struct {
	Query string `json:"query"`
}

// Validate validates the arguments.
func (t *RetrieverTool) Validate(args json.RawMessage) error {
	var a retrieverArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(a.Query) == "" {
		return errors.New("query cannot be empty")
	}
	return nil
}

// Execute returns matching chunks separated by blank lines.
func (t *RetrieverTool) Execute(ctx context.Context, args json.RawMessage) (tools.ToolResult, error) {
	var a retrieverArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tools.FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
	}

	docs, err := t.retriever.GetRelevantDocuments(ctx, strings.TrimSpace(a.Query))
	if err != nil {
		return tools.FailureResult(fmt.Errorf("retrieval failed: %w", err)), nil
	}
	if len(docs) == 0 {
		return tools.SuccessResult("No relevant documents found."), nil
	}

	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.PageContent
	}
	return tools.SuccessResult(strings.Join(parts, "\n\n")), nil
}
