package retrieval

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

// ErrNoDocuments is returned when none of the source URLs could be loaded.
var ErrNoDocuments = errors.New("no documents loaded from any URL")

// ReadURLFile reads one URL per line, skipping blank lines and # comments.
// A missing file yields no URLs.
func ReadURLFile(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open URL file: %w", err)
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read URL file: %w", err)
	}
	return urls, nil
}

// MergeURLs concatenates lists, dropping blanks and repeats while keeping
// first-seen order.
func MergeURLs(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, u := range list {
			u = strings.TrimSpace(u)
			if u == "" {
				continue
			}
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}

// Fingerprint identifies an index build: the same URLs, chunking and
// embedding model produce the same fingerprint regardless of URL order.
func Fingerprint(urls []string, chunkSize, chunkOverlap int, embeddingModel string) string {
	sorted := append([]string(nil), urls...)
	sort.Strings(sorted)

	d := xxhash.New()
	for _, u := range sorted {
		d.WriteString(u)
		d.WriteString("\n")
	}
	d.WriteString(strconv.Itoa(chunkSize))
	d.WriteString("/")
	d.WriteString(strconv.Itoa(chunkOverlap))
	d.WriteString("/")
	d.WriteString(embeddingModel)
	return strconv.FormatUint(d.Sum64(), 16)
}

// Loader fetches web pages and extracts their text.
type Loader struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// NewLoader creates a loader with a per-request timeout.
func NewLoader(timeout time.Duration, userAgent string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{client: &http.Client{Timeout: timeout}, userAgent: userAgent, logger: logger}
}

// Load fetches every URL. A URL that fails is logged and skipped; the call
// fails only when nothing loads.
func (l *Loader) Load(ctx context.Context, urls []string) ([]schema.Document, error) {
	var docs []schema.Document
	for i, u := range urls {
		l.logger.Info("loading document source", "index", i+1, "total", len(urls), "url", u)
		loaded, err := l.loadOne(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.logger.Warn("failed to load document source", "url", u, "error", err)
			continue
		}
		docs = append(docs, loaded...)
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	return docs, nil
}

func (l *Loader) loadOne(ctx context.Context, u string) ([]schema.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	docs, err := documentloaders.NewHTML(resp.Body).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}
	for i := range docs {
		if docs[i].Metadata == nil {
			docs[i].Metadata = map[string]any{}
		}
		docs[i].Metadata["source"] = u
	}
	return docs, nil
}

// Split chunks docs with a recursive character splitter.
func Split(docs []schema.Document, chunkSize, chunkOverlap int) ([]schema.Document, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)
	chunks, err := textsplitter.SplitDocuments(splitter, docs)
	if err != nil {
		return nil, fmt.Errorf("failed to split documents: %w", err)
	}
	return chunks, nil
}
