package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/richinex/agentrag/tools"
)

// Toolset owns the clients of every connected server and the tools they
// expose. Close it when the process exits.
type Toolset struct {
	mu      sync.Mutex
	clients []*Client
	tools   []tools.Tool
}

// Connect starts every configured server and lists its tools. Tool names
// are prefixed with the server name. A server that fails to start is
// skipped and reported in the returned error; the toolset still holds the
// servers that did start.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Toolset, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ts := &Toolset{}
	var errs []error
	for _, server := range cfg.Servers() {
		client, err := Start(ctx, server)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", server.Name, err))
			continue
		}
		infos, err := client.ListTools(ctx)
		if err != nil {
			client.Close()
			errs = append(errs, fmt.Errorf("%s: failed to list tools: %w", server.Name, err))
			continue
		}
		ts.clients = append(ts.clients, client)
		for _, info := range infos {
			ts.tools = append(ts.tools, newRemoteTool(server.Name, client, info))
		}
		logger.Info("connected MCP server", "server", server.Name, "tools", len(infos))
	}
	return ts, errors.Join(errs...)
}

// Tools returns the remote tools in server then listing order.
func (t *Toolset) Tools() []tools.Tool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]tools.Tool(nil), t.tools...)
}

// Close stops every server.
func (t *Toolset) Close() error {
	t.mu.Lock()
	clients := t.clients
	t.clients = nil
	t.mu.Unlock()

	var errs []error
	for _, c := range clients {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// remoteTool adapts one server tool to tools.Tool.
type remoteTool struct {
	tools.BaseTool
	client *Client
	remote string
	meta   tools.ToolMetadata
}

func newRemoteTool(server string, client *Client, info ToolInfo) *remoteTool {
	return &remoteTool{
		client: client,
		remote: info.Name,
		meta: tools.ToolMetadata{
			Name:        server + "_" + info.Name,
			Description: info.Description,
			Parameters:  parseParameters(info.InputSchema),
			InputSchema: info.InputSchema,
		},
	}
}

func (t *remoteTool) Metadata() tools.ToolMetadata { return t.meta }

func (t *remoteTool) Execute(ctx context.Context, args json.RawMessage) (tools.ToolResult, error) {
	raw, err := t.client.CallTool(ctx, t.remote, args)
	if err != nil {
		return tools.ToolResult{}, fmt.Errorf("tool call failed: %w", err)
	}
	return decodeResult(raw), nil
}

// parseParameters extracts top-level parameters from an input schema,
// sorted by name. They are a summary for listings; the model and the
// argument validator see the full InputSchema.
func parseParameters(inputSchema json.RawMessage) []tools.ToolParameter {
	var schema struct {
		Properties map[string]struct {
			Type        any      `json:"type"`
			Description string   `json:"description"`
			Enum        []string `json:"enum"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(inputSchema, &schema); err != nil {
		return nil
	}

	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]tools.ToolParameter, 0, len(names))
	for _, name := range names {
		prop := schema.Properties[name]
		params = append(params, tools.ToolParameter{
			Name:        name,
			ParamType:   schemaType(prop.Type),
			Description: prop.Description,
			Required:    required[name],
			Enum:        prop.Enum,
		})
	}
	return params
}

// schemaType picks the first non-null type; union types fall back to it.
func schemaType(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok && s != "null" {
				return s
			}
		}
	}
	return "string"
}

// decodeResult flattens the text blocks of a tools/call result. Results
// flagged isError become failed tool results.
func decodeResult(raw json.RawMessage) tools.ToolResult {
	var res struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(raw, &res); err != nil || res.Content == nil {
		return tools.SuccessResult(string(raw))
	}

	var parts []string
	for _, c := range res.Content {
		if c.Type == "text" {
			parts = append(parts, c.Text)
		} else {
			parts = append(parts, fmt.Sprintf("[%s content omitted]", c.Type))
		}
	}
	text := strings.Join(parts, "\n")
	if res.IsError {
		return tools.FailureResult(errors.New(text))
	}
	return tools.SuccessResult(text)
}
