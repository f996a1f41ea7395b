// Package retrieval builds and serves the document index behind the
// retrieval tool.
//
// Information Hiding:
// - Vector storage and cosine ranking hidden behind langchaingo's VectorStore
// - Cache file layout and invalidation hidden
// - Document loading and chunking hidden behind Service.EnsureReady
package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// ErrCacheMiss is returned by LoadIndex when no usable cache exists.
var ErrCacheMiss = errors.New("index cache miss")

// cacheFile is the file written inside the cache directory.
const cacheFile = "index.json"

type entry struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Vector   []float32      `json:"vector"`
	norm     float64
}

// Index is an in-memory vector store ranked by cosine similarity.
// Thread-safe.
type Index struct {
	embedder embeddings.Embedder

	mu      sync.RWMutex
	entries []entry
	seen    map[uint64]struct{}
}

// NewIndex creates an empty index that embeds with e.
func NewIndex(e embeddings.Embedder) *Index {
	return &Index{embedder: e, seen: make(map[uint64]struct{})}
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// AddDocuments embeds and stores docs. Chunks whose content is already
// indexed are skipped, as are documents the Deduplicater option rejects.
// It returns the IDs of the stored chunks.
func (ix *Index) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	opts := applyOptions(options)

	ix.mu.RLock()
	var fresh []schema.Document
	batch := make(map[uint64]struct{})
	for _, d := range docs {
		h := xxhash.Sum64String(d.PageContent)
		if _, dup := ix.seen[h]; dup {
			continue
		}
		if _, dup := batch[h]; dup {
			continue
		}
		if opts.Deduplicater != nil && opts.Deduplicater(ctx, d) {
			continue
		}
		batch[h] = struct{}{}
		fresh = append(fresh, d)
	}
	ix.mu.RUnlock()

	if len(fresh) == 0 {
		return nil, nil
	}

	embedder := ix.embedder
	if opts.Embedder != nil {
		embedder = opts.Embedder
	}
	texts := make([]string, len(fresh))
	for i, d := range fresh {
		texts[i] = d.PageContent
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(vectors) != len(fresh) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(fresh))
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ids := make([]string, 0, len(fresh))
	for i, d := range fresh {
		h := xxhash.Sum64String(d.PageContent)
		if _, dup := ix.seen[h]; dup {
			continue
		}
		e := entry{
			ID:       uuid.NewString(),
			Content:  d.PageContent,
			Metadata: d.Metadata,
			Vector:   vectors[i],
			norm:     norm(vectors[i]),
		}
		ix.entries = append(ix.entries, e)
		ix.seen[h] = struct{}{}
		ids = append(ids, e.ID)
	}
	return ids, nil
}

// SimilaritySearch returns up to numDocuments chunks most similar to query,
// best first. A ScoreThreshold option drops weaker matches.
func (ix *Index) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	opts := applyOptions(options)
	if numDocuments <= 0 {
		return nil, nil
	}

	embedder := ix.embedder
	if opts.Embedder != nil {
		embedder = opts.Embedder
	}
	qv, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	qn := norm(qv)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	type scored struct {
		idx   int
		score float32
	}
	ranked := make([]scored, 0, len(ix.entries))
	for i, e := range ix.entries {
		s := cosine(qv, qn, e.Vector, e.norm)
		if opts.ScoreThreshold > 0 && s < opts.ScoreThreshold {
			continue
		}
		ranked = append(ranked, scored{idx: i, score: s})
	}
	slices.SortStableFunc(ranked, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})
	if len(ranked) > numDocuments {
		ranked = ranked[:numDocuments]
	}

	out := make([]schema.Document, len(ranked))
	for i, r := range ranked {
		e := ix.entries[r.idx]
		out[i] = schema.Document{PageContent: e.Content, Metadata: e.Metadata, Score: r.score}
	}
	return out, nil
}

func applyOptions(options []vectorstores.Option) vectorstores.Options {
	var opts vectorstores.Options
	for _, o := range options {
		o(&opts)
	}
	return opts
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, an float64, b []float32, bn float64) float32 {
	if an == 0 || bn == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot / (an * bn))
}

type cacheEnvelope struct {
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
	Entries     []entry   `json:"entries"`
}

// Save writes the index into dir, tagged with fingerprint.
func (ix *Index) Save(dir, fingerprint string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	ix.mu.RLock()
	env := cacheEnvelope{Fingerprint: fingerprint, CreatedAt: time.Now().UTC(), Entries: ix.entries}
	data, err := json.Marshal(env)
	ix.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}

	// Atomic replace.
	tmp := filepath.Join(dir, cacheFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write index cache: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, cacheFile)); err != nil {
		return fmt.Errorf("failed to write index cache: %w", err)
	}
	return nil
}

// LoadIndex reads a cache written by Save. It returns ErrCacheMiss when the
// cache is absent, was built from a different fingerprint, or is older
// than ttl (a zero ttl never expires).
func LoadIndex(dir, fingerprint string, ttl time.Duration, e embeddings.Embedder) (*Index, error) {
	data, err := os.ReadFile(filepath.Join(dir, cacheFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: no cache at %s", ErrCacheMiss, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index cache: %w", err)
	}

	var env cacheEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode index cache: %w", err)
	}
	if env.Fingerprint != fingerprint {
		return nil, fmt.Errorf("%w: source configuration changed", ErrCacheMiss)
	}
	if ttl > 0 && time.Since(env.CreatedAt) > ttl {
		return nil, fmt.Errorf("%w: cache older than %s", ErrCacheMiss, ttl)
	}

	ix := NewIndex(e)
	for _, en := range env.Entries {
		en.norm = norm(en.Vector)
		ix.entries = append(ix.entries, en)
		ix.seen[xxhash.Sum64String(en.Content)] = struct{}{}
	}
	return ix, nil
}

// Verify Index implements vectorstores.VectorStore
var _ vectorstores.VectorStore = (*Index)(nil)
