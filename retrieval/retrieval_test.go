package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"

	"github.com/richinex/agentrag/internal/lifecycle"
)

// wordEmbedder hashes words into a small bag-of-words vector.
type wordEmbedder struct {
	docCalls atomic.Int32
}

func (e *wordEmbedder) vector(text string) []float32 {
	v := make([]float32, 256)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(w, ".,?!")))
		v[h.Sum32()%256]++
	}
	return v
}

func (e *wordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.docCalls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *wordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func docs(texts ...string) []schema.Document {
	out := make([]schema.Document, len(texts))
	for i, t := range texts {
		out[i] = schema.Document{PageContent: t}
	}
	return out
}

func TestIndexSimilaritySearch(t *testing.T) {
	ix := NewIndex(&wordEmbedder{})
	ctx := context.Background()

	ids, err := ix.AddDocuments(ctx, docs(
		"LangSmith traces every run of your application",
		"Bananas are yellow and rich in potassium",
		"Datasets in LangSmith hold evaluation examples",
	))
	if err != nil {
		t.Fatalf("AddDocuments failed: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(ids))
	}

	found, err := ix.SimilaritySearch(ctx, "how does langsmith trace a run", 2)
	if err != nil {
		t.Fatalf("SimilaritySearch failed: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 results, got %d", len(found))
	}
	if !strings.Contains(found[0].PageContent, "traces every run") {
		t.Errorf("unexpected best match %q", found[0].PageContent)
	}
	if found[0].Score < found[1].Score {
		t.Error("results are not ordered by score")
	}

	strict, err := ix.SimilaritySearch(ctx, "potassium bananas", 3, vectorstores.WithScoreThreshold(0.4))
	if err != nil {
		t.Fatalf("SimilaritySearch failed: %v", err)
	}
	if len(strict) != 1 || !strings.HasPrefix(strict[0].PageContent, "Bananas") {
		t.Errorf("score threshold not applied: %+v", strict)
	}
}

func TestIndexDeduplicates(t *testing.T) {
	e := &wordEmbedder{}
	ix := NewIndex(e)
	ctx := context.Background()

	ix.AddDocuments(ctx, docs("same chunk", "same chunk", "other chunk"))
	ids, err := ix.AddDocuments(ctx, docs("same chunk"))
	if err != nil {
		t.Fatalf("AddDocuments failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected duplicate to be skipped, got %d ids", len(ids))
	}
	if ix.Len() != 2 {
		t.Errorf("expected 2 chunks, got %d", ix.Len())
	}
	if e.docCalls.Load() != 1 {
		t.Errorf("expected one embedding call, got %d", e.docCalls.Load())
	}
}

func TestIndexCacheRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	ctx := context.Background()

	ix := NewIndex(&wordEmbedder{})
	ix.AddDocuments(ctx, docs("alpha beta", "gamma delta"))
	if err := ix.Save(dir, "fp1"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadIndex(dir, "fp1", time.Hour, &wordEmbedder{})
	if err != nil {
		t.Fatalf("LoadIndex failed: %v", err)
	}
	if loaded.Len() != 2 {
		t.Errorf("expected 2 chunks, got %d", loaded.Len())
	}
	found, _ := loaded.SimilaritySearch(ctx, "gamma", 1)
	if len(found) != 1 || found[0].PageContent != "gamma delta" {
		t.Errorf("unexpected search result after reload: %+v", found)
	}

	if _, err := LoadIndex(dir, "fp2", 0, &wordEmbedder{}); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected cache miss on fingerprint change, got %v", err)
	}
	if _, err := LoadIndex(t.TempDir(), "fp1", 0, &wordEmbedder{}); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected cache miss on empty dir, got %v", err)
	}
}

func TestIndexCacheExpiry(t *testing.T) {
	dir := t.TempDir()
	data, _ := json.Marshal(cacheEnvelope{Fingerprint: "fp", CreatedAt: time.Now().Add(-48 * time.Hour)})
	os.WriteFile(filepath.Join(dir, cacheFile), data, 0o644)

	if _, err := LoadIndex(dir, "fp", 24*time.Hour, &wordEmbedder{}); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected expired cache to miss, got %v", err)
	}
	if _, err := LoadIndex(dir, "fp", 0, &wordEmbedder{}); err != nil {
		t.Errorf("zero ttl should never expire: %v", err)
	}
}

func TestURLHelpers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	os.WriteFile(path, []byte("# docs\nhttps://a.example/one\n\nhttps://b.example/two\n"), 0o644)

	fromFile, err := ReadURLFile(path)
	if err != nil {
		t.Fatalf("ReadURLFile failed: %v", err)
	}
	merged := MergeURLs(fromFile, []string{" https://a.example/one", "https://c.example/three", ""})
	want := "https://a.example/one,https://b.example/two,https://c.example/three"
	if strings.Join(merged, ",") != want {
		t.Errorf("got %v", merged)
	}

	missing, err := ReadURLFile(filepath.Join(t.TempDir(), "absent.txt"))
	if err != nil || missing != nil {
		t.Errorf("missing file: urls=%v err=%v", missing, err)
	}

	if Fingerprint([]string{"a", "b"}, 1000, 200, "m") != Fingerprint([]string{"b", "a"}, 1000, 200, "m") {
		t.Error("fingerprint depends on URL order")
	}
	if Fingerprint([]string{"a"}, 1000, 200, "m") == Fingerprint([]string{"a"}, 500, 200, "m") {
		t.Error("fingerprint ignores chunk size")
	}
}

const langsmithPage = `<html><head><title>LangSmith</title></head><body>
<h1>LangSmith overview</h1>
<p>LangSmith is a platform for building production-grade LLM applications.
It lets you trace, monitor and evaluate your application.</p>
</body></html>`

func newDocServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/broken" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(langsmithPage))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testConfig(t *testing.T, urls ...string) Config {
	cfg := DefaultConfig()
	cfg.URLs = urls
	cfg.CachePath = filepath.Join(t.TempDir(), "index")
	cfg.FetchTimeout = 5 * time.Second
	return cfg
}

func TestServiceBuildsThenLoadsFromCache(t *testing.T) {
	srv, hits := newDocServer(t)
	cfg := testConfig(t, srv.URL+"/overview", srv.URL+"/broken")
	ctx := context.Background()

	first := NewService(cfg, &wordEmbedder{}, nil)
	if err := first.EnsureReady(ctx); err != nil {
		t.Fatalf("EnsureReady failed: %v", err)
	}
	info := first.Info()
	if !info.Initialized || info.Source != "build" || info.Chunks == 0 {
		t.Errorf("unexpected info %+v", info)
	}

	tool, err := first.Tool()
	if err != nil {
		t.Fatalf("Tool failed: %v", err)
	}
	res, _ := tool.Execute(ctx, json.RawMessage(`{"query":"what is langsmith"}`))
	if !strings.Contains(res.Output, "LangSmith is a platform") {
		t.Errorf("unexpected retrieval output %q", res.Output)
	}

	before := hits.Load()
	second := NewService(cfg, &wordEmbedder{}, nil)
	if err := second.EnsureReady(ctx); err != nil {
		t.Fatalf("EnsureReady from cache failed: %v", err)
	}
	if second.Info().Source != "cache" {
		t.Errorf("expected cache load, got %+v", second.Info())
	}
	if hits.Load() != before {
		t.Error("cache load should not fetch URLs")
	}
}

func TestServiceFailureIsRetryable(t *testing.T) {
	srv, _ := newDocServer(t)
	cfg := testConfig(t, srv.URL+"/broken")
	cfg.CacheEnabled = false
	ctx := context.Background()

	svc := NewService(cfg, &wordEmbedder{}, nil)
	err := svc.EnsureReady(ctx)
	if !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("expected ErrNoDocuments, got %v", err)
	}
	if svc.State() != lifecycle.Failed {
		t.Errorf("expected failed state, got %s", svc.State())
	}
	if _, err := svc.Tool(); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
	if svc.Info().Error == "" {
		t.Error("expected error in info")
	}

	svc.cfg.URLs = []string{srv.URL + "/overview"}
	if err := svc.EnsureReady(ctx); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !svc.Ready() {
		t.Error("expected ready after retry")
	}
}

func TestServiceDisabled(t *testing.T) {
	cfg := testConfig(t, "http://unused.invalid")
	cfg.Enabled = false
	svc := NewService(cfg, &wordEmbedder{}, nil)

	if _, err := svc.Load(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled, got %v", err)
	}
}

func TestServiceRebuild(t *testing.T) {
	srv, _ := newDocServer(t)
	cfg := testConfig(t, srv.URL+"/overview")
	svc := NewService(cfg, &wordEmbedder{}, nil)

	n, err := svc.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if n == 0 {
		t.Error("expected chunks")
	}
	if !svc.Ready() {
		t.Error("expected ready after rebuild")
	}
	if _, err := os.Stat(filepath.Join(cfg.CachePath, cacheFile)); err != nil {
		t.Errorf("expected cache file: %v", err)
	}
}
