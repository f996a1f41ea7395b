// Application wiring for the agentrag commands.
//
// Information Hiding:
// - Database, provider and tool source construction hidden behind App
// - Source order and optional-component fallbacks hidden
// - Resource cleanup hidden behind Close
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tmc/langchaingo/embeddings"

	"github.com/richinex/agentrag/agent"
	"github.com/richinex/agentrag/api"
	"github.com/richinex/agentrag/config"
	"github.com/richinex/agentrag/health"
	"github.com/richinex/agentrag/internal/logging"
	"github.com/richinex/agentrag/llm"
	"github.com/richinex/agentrag/mcp"
	"github.com/richinex/agentrag/retrieval"
	"github.com/richinex/agentrag/storage"
	"github.com/richinex/agentrag/tools"
)

// Version is reported by the API and health endpoints.
const Version = "1.0.0"

// App holds the long-lived components of one process.
type App struct {
	settings  config.Settings
	logger    *slog.Logger
	crm       *storage.SqliteCustomers
	analytics *storage.Analytics
	retrieval *retrieval.Service
	agents    *agent.Service
	checker   *health.Checker

	remoteMu sync.Mutex
	remote   *mcp.Toolset
}

// NewApp opens the CRM database (seeding it when empty) and the music
// database, then assembles the agent service. Nothing calls a model until
// the agent is first used.
func NewApp(ctx context.Context, settings config.Settings, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	a := &App{settings: settings, logger: logger}

	crm, err := storage.OpenSqliteCustomers(settings.Database.CRMPath)
	if err != nil {
		return nil, err
	}
	a.crm = crm
	seeded, err := storage.SeedSampleData(ctx, crm)
	if err != nil {
		crm.Close()
		return nil, fmt.Errorf("failed to seed CRM database: %w", err)
	}
	if seeded > 0 {
		logger.Info("seeded CRM database", "path", settings.Database.CRMPath, "customers", seeded)
	}

	analytics, err := storage.OpenAnalytics(settings.Database.ChinookPath, settings.SQL.MaxRows)
	if err != nil {
		logger.Warn("music database unavailable, query_music_database disabled", "error", err)
	} else {
		a.analytics = analytics
	}

	a.retrieval = retrieval.NewService(a.retrievalConfig(), a.embedder(), logger)
	a.agents = agent.NewService(a.agentConfig(), a.newProvider, a.sources(), logger)
	a.checker = health.NewChecker(Version,
		health.AgentCheck(a.agents),
		health.RetrievalCheck(a.retrieval),
		health.DatabaseCheck(a.crm),
	)
	return a, nil
}

// Close releases the databases.
func (a *App) Close() error {
	var errs []error
	if a.crm != nil {
		errs = append(errs, a.crm.Close())
	}
	if a.analytics != nil {
		errs = append(errs, a.analytics.Close())
	}
	errs = append(errs, a.closeRemote())
	return errors.Join(errs...)
}

// Agents returns the agent service.
func (a *App) Agents() *agent.Service { return a.agents }

// Retrieval returns the document index service.
func (a *App) Retrieval() *retrieval.Service { return a.retrieval }

// CRM returns the customer repository.
func (a *App) CRM() *storage.SqliteCustomers { return a.crm }

// Server builds the HTTP server from the API settings.
func (a *App) Server() *api.Server {
	s := a.settings.API
	return api.NewServer(a.agents, a.checker, api.Options{
		Addr:            s.Addr(),
		Version:         Version,
		CORSEnabled:     s.CORSEnabled,
		AllowedOrigins:  s.CORSAllowOrigins,
		RateLimit:       s.RateLimitEnabled,
		RateLimitRPS:    s.RateLimitRPS,
		RateLimitBurst:  s.RateLimitBurst,
		ShutdownTimeout: s.ShutdownTimeout,
	}, a.logger)
}

// Serve runs the HTTP server until ctx is cancelled. The agent is
// initialized in the background so the first request does not pay for it.
func (a *App) Serve(ctx context.Context) error {
	go func() {
		if err := a.agents.EnsureReady(ctx); err != nil {
			a.logger.Warn("agent service initialization failed, will retry on first request", "error", err)
			return
		}
		info := a.agents.Info()
		a.logger.Info("agent service ready", "model", info.Model, "tools", info.ToolsCount)
	}()
	return a.Server().Run(ctx)
}

func (a *App) agentConfig() agent.Config {
	cfg := agent.DefaultConfig()
	cfg.SystemPrompt = a.settings.Agent.SystemMessage
	cfg.MaxIterations = a.settings.Agent.MaxIterations
	cfg.ToolConfig = tools.ToolConfig{
		Timeout:    a.settings.Agent.ToolTimeout,
		MaxRetries: a.settings.Agent.ToolMaxRetries,
	}
	return cfg
}

func (a *App) retrievalConfig() retrieval.Config {
	s := a.settings.Retrieval
	fromFile, err := retrieval.ReadURLFile(s.URLsFile)
	if err != nil {
		a.logger.Warn("ignoring URL file", "path", s.URLsFile, "error", err)
	}
	cfg := retrieval.DefaultConfig()
	cfg.Enabled = s.Enabled
	cfg.URLs = retrieval.MergeURLs(fromFile, s.AdditionalURLs)
	cfg.ChunkSize = s.ChunkSize
	cfg.ChunkOverlap = s.ChunkOverlap
	cfg.CacheEnabled = s.CacheEnabled
	cfg.CachePath = s.CachePath
	cfg.CacheTTL = s.CacheTTL
	cfg.EmbeddingModel = s.EmbeddingModel
	cfg.ToolName = s.ToolName
	cfg.ToolDescription = s.ToolDescription
	cfg.UserAgent = tools.DefaultUserAgent
	return cfg
}

// embedder returns nil when no OpenAI key is available; the retrieval
// service then reports itself unavailable.
func (a *App) embedder() embeddings.Embedder {
	if !a.settings.Retrieval.Enabled {
		return nil
	}
	key, err := config.APIKeyFor("openai")
	if err != nil {
		a.logger.Warn("document retrieval needs an OpenAI key for embeddings", "error", err)
		return nil
	}
	e, err := retrieval.NewOpenAIEmbedder(key, a.settings.Retrieval.EmbeddingModel)
	if err != nil {
		a.logger.Warn("embedder unavailable", "error", err)
		return nil
	}
	return e
}

func (a *App) newProvider() (llm.Provider, error) {
	s := a.settings.LLM
	pt, err := llm.ParseProviderType(s.Provider)
	if err != nil {
		return nil, err
	}
	return llm.NewProviderBuilder(pt).
		Model(s.Model).
		MaxTokens(s.MaxTokens).
		Temperature(float32(s.Temperature)).
		APIKey(s.APIKey)
}

// sqlProvider is the model that writes SQL for the music database. It
// prefers OpenAI with the configured SQL model and falls back to the
// main provider.
func (a *App) sqlProvider() (llm.Provider, error) {
	if key, err := config.APIKeyFor("openai"); err == nil {
		return llm.NewProviderBuilder(llm.ProviderOpenAI).
			Model(a.settings.SQL.ModelName).
			MaxTokens(a.settings.SQL.MaxTokens).
			Temperature(0).
			APIKey(key)
	}
	return a.newProvider()
}

// sources lists tool sources in registration order: web search, CRM,
// music database, document retrieval, then any MCP servers.
func (a *App) sources() []agent.Source {
	return []agent.Source{
		{Name: "search", Load: func(context.Context) ([]tools.Tool, error) {
			return tools.SearchTools(tools.SearchOptions{Timeout: 30 * time.Second})
		}},
		agent.StaticSource("crm", tools.CRMTools(a.crm)...),
		{Name: "analytics", Load: func(context.Context) ([]tools.Tool, error) {
			if a.analytics == nil {
				return nil, fmt.Errorf("music database not found at %s", a.settings.Database.ChinookPath)
			}
			p, err := a.sqlProvider()
			if err != nil {
				return nil, fmt.Errorf("no model for SQL generation: %w", err)
			}
			return []tools.Tool{tools.NewMusicQueryTool(a.analytics, p, a.logger)}, nil
		}},
		{Name: "retrieval", Load: a.retrieval.Load},
		{Name: "mcp", Load: a.loadRemoteTools},
	}
}

// loadRemoteTools starts the configured MCP servers. Servers that fail
// are logged; the others still contribute tools. Servers started by an
// earlier failed initialization are stopped first.
func (a *App) loadRemoteTools(ctx context.Context) ([]tools.Tool, error) {
	a.closeRemote()

	cfg, err := mcp.LoadConfig(a.settings.Agent.MCPConfigPath)
	if err != nil {
		return nil, err
	}
	if len(cfg.MCPServers) == 0 {
		return nil, nil
	}
	ts, err := mcp.Connect(ctx, cfg, a.logger)
	if err != nil {
		a.logger.Warn("some MCP servers failed to start", "error", err)
	}
	a.remoteMu.Lock()
	a.remote = ts
	a.remoteMu.Unlock()
	return ts.Tools(), nil
}

func (a *App) closeRemote() error {
	a.remoteMu.Lock()
	ts := a.remote
	a.remote = nil
	a.remoteMu.Unlock()
	if ts == nil {
		return nil
	}
	return ts.Close()
}
