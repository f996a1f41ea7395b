// arXiv search tool.
//
// Information Hiding:
// - HTTP client and Atom feed decoding hidden
// - Result formatting and truncation hidden

package tools

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultArxivURL is the public arXiv query endpoint.
const DefaultArxivURL = "https://export.arxiv.org/api/query"

// ArxivTool searches arXiv and returns the top result's metadata and abstract.
type ArxivTool struct {
	BaseTool
	client     *http.Client
	baseURL    string
	userAgent  string
	maxResults int
	maxChars   int
}

// NewArxivTool creates an arXiv tool returning one result capped at 1000 characters.
func NewArxivTool(timeout time.Duration, userAgent string) *ArxivTool {
	return &ArxivTool{
		client:     &http.Client{Timeout: timeout},
		baseURL:    DefaultArxivURL,
		userAgent:  userAgent,
		maxResults: 1,
		maxChars:   1000,
	}
}

// WithBaseURL points the tool at a different endpoint.
func (t *ArxivTool) WithBaseURL(u string) *ArxivTool {
	t.baseURL = u
	return t
}

// Metadata returns the tool metadata.
func (t *ArxivTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name: ArxivSearchName,
		Description: "Use this tool to search for academic papers and research articles on ArXiv. " +
			"Useful for scientific and technical topics.",
		Parameters: []ToolParameter{
			{Name: "query", ParamType: "string", Description: "Search query", Required: true},
		},
	}
}

type queryArgs struct {
	Query string `json:"query"`
}

// Validate validates the arguments.
func (t *ArxivTool) Validate(args json.RawMessage) error {
	var a queryArgs
	if err := decodeArgs(args, &a); err != nil {
		return err
	}
	if strings.TrimSpace(a.Query) == "" {
		return errors.New("query cannot be empty")
	}
	return nil
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string       `xml:"title"`
	Summary   string       `xml:"summary"`
	Published string       `xml:"published"`
	Authors   []atomAuthor `xml:"author"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

// Execute queries arXiv.
func (t *ArxivTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a queryArgs
	if err := decodeArgs(args, &a); err != nil {
		return FailureResult(err), nil
	}

	q := url.Values{}
	q.Set("search_query", "all:"+strings.TrimSpace(a.Query))
	q.Set("start", "0")
	q.Set("max_results", fmt.Sprint(t.maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return FailureResult(fmt.Errorf("failed to create request: %w", err)), nil
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return FailureResultf("arxiv request timeout: %v", err), nil
		}
		return FailureResult(fmt.Errorf("arxiv request failed: %w", err)), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return FailureResultf("arxiv HTTP error: %s", resp.Status), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return FailureResult(fmt.Errorf("failed to read response body: %w", err)), nil
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return FailureResult(fmt.Errorf("failed to decode arxiv feed: %w", err)), nil
	}
	if len(feed.Entries) == 0 {
		return SuccessResult("No good Arxiv Result was found"), nil
	}

	docs := make([]string, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		docs = append(docs, formatArxivEntry(e, t.maxChars))
	}
	return SuccessResult(strings.Join(docs, "\n\n")), nil
}

func formatArxivEntry(e atomEntry, maxChars int) string {
	names := make([]string, len(e.Authors))
	for i, a := range e.Authors {
		names[i] = strings.TrimSpace(a.Name)
	}
	published := e.Published
	if len(published) >= len("2006-01-02") {
		published = published[:len("2006-01-02")]
	}

	text := fmt.Sprintf("Published: %s\nTitle: %s\nAuthors: %s\nSummary: %s",
		published, collapseSpace(e.Title), strings.Join(names, ", "), collapseSpace(e.Summary))
	return truncateRunes(text, maxChars)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
