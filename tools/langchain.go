// Adapter for langchaingo tools.
//
// Information Hiding:
// - langchaingo's single-string Call signature hidden behind a "query" parameter
// - Upstream tool configuration (result counts, truncation) fixed at construction

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	lctools "github.com/tmc/langchaingo/tools"
	"github.com/tmc/langchaingo/tools/duckduckgo"
	"github.com/tmc/langchaingo/tools/wikipedia"
)

// DefaultUserAgent identifies outbound search requests.
const DefaultUserAgent = "agentrag/1.0 (https://github.com/richinex/agentrag)"

// Names of the knowledge search tools.
const (
	ArxivSearchName      = "ArxivSearch"
	DuckDuckGoSearchName = "DuckDuckGoSearch"
	WikipediaSearchName  = "WikipediaSearch"
)

// LangchainTool exposes a langchaingo tool with one required "query" argument.
type LangchainTool struct {
	BaseTool
	name        string
	description string
	inner       lctools.Tool
}

// NewLangchainTool wraps inner under the given name. An empty description
// falls back to the upstream one.
func NewLangchainTool(name, description string, inner lctools.Tool) *LangchainTool {
	if description == "" {
		description = inner.Description()
	}
	return &LangchainTool{name: name, description: description, inner: inner}
}

// Metadata returns the tool metadata.
func (t *LangchainTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        t.name,
		Description: t.description,
		Parameters: []ToolParameter{
			{Name: "query", ParamType: "string", Description: "Search query", Required: true},
		},
	}
}

// Validate validates the arguments.
func (t *LangchainTool) Validate(args json.RawMessage) error {
	var a queryArgs
	if err := decodeArgs(args, &a); err != nil {
		return err
	}
	if strings.TrimSpace(a.Query) == "" {
		return errors.New("query cannot be empty")
	}
	return nil
}

// Execute calls the wrapped tool.
func (t *LangchainTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a queryArgs
	if err := decodeArgs(args, &a); err != nil {
		return FailureResult(err), nil
	}

	out, err := t.inner.Call(ctx, strings.TrimSpace(a.Query))
	if err != nil {
		return FailureResult(fmt.Errorf("%s search failed: %w", t.name, err)), nil
	}
	if strings.TrimSpace(out) == "" {
		return SuccessResult("No results found."), nil
	}
	return SuccessResult(out), nil
}

// NewWikipediaTool returns the top Wikipedia page summary, capped at 1000 characters.
func NewWikipediaTool(userAgent string) *LangchainTool {
	w := wikipedia.New(userAgent)
	w.TopK = 1
	w.DocMaxChars = 1000
	return NewLangchainTool(WikipediaSearchName,
		"Use this tool when you want to search for information on Wikipedia by Terms, Keywords or any Topics.",
		w)
}

// NewDuckDuckGoTool returns up to maxResults web search snippets.
func NewDuckDuckGoTool(maxResults int, userAgent string) (*LangchainTool, error) {
	d, err := duckduckgo.New(maxResults, userAgent)
	if err != nil {
		return nil, fmt.Errorf("failed to create duckduckgo tool: %w", err)
	}
	return NewLangchainTool(DuckDuckGoSearchName,
		"Search the internet using DuckDuckGo for any kinds of information. "+
			"Use it for current information, general web content and facts, and prefer it for long queries. "+
			"Should NOT be used for Article search or Topic Search (use WikipediaSearch or ArxivSearch instead).",
		d), nil
}

// SearchOptions configures the web search tool set.
type SearchOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxResults int
}

// SearchTools builds ArxivSearch, DuckDuckGoSearch and WikipediaSearch, in that order.
func SearchTools(opts SearchOptions) ([]Tool, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultToolTimeout
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 5
	}

	ddg, err := NewDuckDuckGoTool(opts.MaxResults, opts.UserAgent)
	if err != nil {
		return nil, err
	}
	return []Tool{
		NewArxivTool(opts.Timeout, opts.UserAgent),
		ddg,
		NewWikipediaTool(opts.UserAgent),
	}, nil
}
