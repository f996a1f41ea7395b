package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tmc/langchaingo/embeddings"

	"github.com/richinex/agentrag/internal/lifecycle"
	"github.com/richinex/agentrag/tools"
)

// Errors reported by Service.
var (
	ErrDisabled = errors.New("document retrieval is disabled")
	ErrNotReady = errors.New("document index not initialized")
	ErrNoURLs   = errors.New("no URLs configured for the document index")
)

// Config controls what is indexed and how the cache behaves.
type Config struct {
	Enabled         bool
	URLs            []string
	ChunkSize       int
	ChunkOverlap    int
	CacheEnabled    bool
	CachePath       string
	CacheTTL        time.Duration
	EmbeddingModel  string
	ToolName        string
	ToolDescription string
	TopK            int
	FetchTimeout    time.Duration
	UserAgent       string
}

// Default retrieval settings.
const (
	DefaultToolName        = "langsmith_search"
	DefaultToolDescription = "Search for information about LangSmith. For any questions related to LangSmith, you must use this tool."
	DefaultChunkSize       = 1000
	DefaultChunkOverlap    = 200
	DefaultTopK            = 4
	DefaultCachePath       = ".faiss_cache/faiss_index"
)

// DefaultConfig returns the default configuration with no URLs.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		ChunkSize:       DefaultChunkSize,
		ChunkOverlap:    DefaultChunkOverlap,
		CacheEnabled:    true,
		CachePath:       DefaultCachePath,
		CacheTTL:        7 * 24 * time.Hour,
		EmbeddingModel:  "text-embedding-3-small",
		ToolName:        DefaultToolName,
		ToolDescription: DefaultToolDescription,
		TopK:            DefaultTopK,
		FetchTimeout:    30 * time.Second,
	}
}

// Info describes the service for health and diagnostics.
type Info struct {
	Initialized     bool   `json:"initialized"`
	State           string `json:"state"`
	VectorstoreType string `json:"vectorstore_type,omitempty"`
	ToolName        string `json:"tool_name,omitempty"`
	Chunks          int    `json:"chunks"`
	Source          string `json:"source,omitempty"`
	CacheEnabled    bool   `json:"cache_enabled"`
	CachePath       string `json:"cache_path,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Service owns the document index. It is initialized lazily and at most
// once successfully; a failed initialization may be retried.
type Service struct {
	cfg      Config
	embedder embeddings.Embedder
	loader   *Loader
	logger   *slog.Logger
	lc       lifecycle.Lifecycle

	mu     sync.RWMutex
	index  *Index
	source string
}

// NewService creates an uninitialized service.
func NewService(cfg Config, embedder embeddings.Embedder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.ToolName == "" {
		cfg.ToolName = DefaultToolName
	}
	if cfg.ToolDescription == "" {
		cfg.ToolDescription = DefaultToolDescription
	}
	return &Service{
		cfg:      cfg,
		embedder: embedder,
		loader:   NewLoader(cfg.FetchTimeout, cfg.UserAgent, logger),
		logger:   logger.With("component", "retrieval"),
	}
}

// Enabled reports whether retrieval is configured on.
func (s *Service) Enabled() bool { return s.cfg.Enabled }

// EnsureReady loads the index from cache or, failing that, builds it from
// the configured URLs and saves the cache.
func (s *Service) EnsureReady(ctx context.Context) error {
	return s.lc.Ensure(ctx, s.initialize)
}

// State returns the lifecycle state.
func (s *Service) State() lifecycle.State { return s.lc.State() }

// Ready reports whether the index is usable.
func (s *Service) Ready() bool { return s.lc.State() == lifecycle.Ready }

func (s *Service) fingerprint() string {
	return Fingerprint(s.cfg.URLs, s.cfg.ChunkSize, s.cfg.ChunkOverlap, s.cfg.EmbeddingModel)
}

func (s *Service) initialize(ctx context.Context) error {
	if !s.cfg.Enabled {
		return ErrDisabled
	}
	if len(s.cfg.URLs) == 0 {
		return ErrNoURLs
	}
	if s.embedder == nil {
		return errors.New("no embedder configured")
	}

	fp := s.fingerprint()
	if s.cfg.CacheEnabled {
		ix, err := LoadIndex(s.cfg.CachePath, fp, s.cfg.CacheTTL, s.embedder)
		if err == nil {
			s.install(ix, "cache")
			s.logger.Info("document index loaded from cache", "path", s.cfg.CachePath, "chunks", ix.Len())
			return nil
		}
		s.logger.Info("cache load failed, building document index from URLs", "reason", err)
	}

	ix, err := s.build(ctx)
	if err != nil {
		return err
	}
	if s.cfg.CacheEnabled {
		if err := ix.Save(s.cfg.CachePath, fp); err != nil {
			s.logger.Warn("failed to save document index cache", "path", s.cfg.CachePath, "error", err)
		} else {
			s.logger.Info("document index saved", "path", s.cfg.CachePath)
		}
	}
	s.install(ix, "build")
	return nil
}

// Rebuild builds the index from the URLs regardless of any cache and saves
// it when caching is enabled. It replaces the live index on success.
func (s *Service) Rebuild(ctx context.Context) (int, error) {
	if len(s.cfg.URLs) == 0 {
		return 0, ErrNoURLs
	}
	ix, err := s.build(ctx)
	if err != nil {
		return 0, err
	}
	if s.cfg.CacheEnabled {
		if err := ix.Save(s.cfg.CachePath, s.fingerprint()); err != nil {
			return 0, err
		}
	}
	s.install(ix, "build")
	// Mark ready for callers that never went through EnsureReady.
	_ = s.lc.Ensure(ctx, func(context.Context) error { return nil })
	return ix.Len(), nil
}

func (s *Service) build(ctx context.Context) (*Index, error) {
	start := time.Now()
	s.logger.Info("building document index", "urls", len(s.cfg.URLs))

	docs, err := s.loader.Load(ctx, s.cfg.URLs)
	if err != nil {
		return nil, err
	}
	chunks, err := Split(docs, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	ix := NewIndex(s.embedder)
	if _, err := ix.AddDocuments(ctx, chunks); err != nil {
		return nil, err
	}
	s.logger.Info("document index built",
		"documents", len(docs), "chunks", ix.Len(), "duration", time.Since(start).Round(time.Millisecond))
	return ix, nil
}

func (s *Service) install(ix *Index, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = ix
	s.source = source
}

// Tool returns the retrieval tool over the loaded index.
func (s *Service) Tool() (tools.Tool, error) {
	s.mu.RLock()
	ix := s.index
	s.mu.RUnlock()
	if ix == nil {
		return nil, ErrNotReady
	}
	return NewRetrieverTool(s.cfg.ToolName, s.cfg.ToolDescription, ix, s.cfg.TopK), nil
}

// Load is a tool source: it ensures the index is ready and returns its tool.
func (s *Service) Load(ctx context.Context) ([]tools.Tool, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return nil, fmt.Errorf("retrieval unavailable: %w", err)
	}
	t, err := s.Tool()
	if err != nil {
		return nil, err
	}
	return []tools.Tool{t}, nil
}

// Info reports the current status.
func (s *Service) Info() Info {
	s.mu.RLock()
	ix, source := s.index, s.source
	s.mu.RUnlock()

	info := Info{
		Initialized:  s.Ready() && ix != nil,
		State:        s.lc.State().String(),
		CacheEnabled: s.cfg.CacheEnabled,
		Source:       source,
	}
	if s.cfg.CacheEnabled {
		info.CachePath = s.cfg.CachePath
	}
	if ix != nil {
		info.VectorstoreType = "in-memory cosine"
		info.ToolName = s.cfg.ToolName
		info.Chunks = ix.Len()
	}
	if err := s.lc.Err(); err != nil {
		info.Error = err.Error()
	}
	return info
}
