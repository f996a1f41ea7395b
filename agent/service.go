// Agent service: the process-wide owner of the agent and its registry.
//
// Information Hiding:
// - Lazy, single-flight initialization hidden behind EnsureReady
// - Tool source loading and partial-failure tolerance hidden
// - Provider construction deferred to the first EnsureReady

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/richinex/agentrag/internal/lifecycle"
	"github.com/richinex/agentrag/llm"
	"github.com/richinex/agentrag/tools"
)

// Source supplies a group of tools. A source may fail without preventing
// the others from loading.
type Source struct {
	Name string
	Load func(ctx context.Context) ([]tools.Tool, error)
}

// StaticSource wraps an already built tool list.
func StaticSource(name string, list ...tools.Tool) Source {
	return Source{Name: name, Load: func(context.Context) ([]tools.Tool, error) { return list, nil }}
}

// ProviderFunc creates the model provider.
type ProviderFunc func() (llm.Provider, error)

// Info describes the service for /info and health checks.
type Info struct {
	Initialized   bool     `json:"initialized"`
	State         string   `json:"state"`
	Model         string   `json:"model,omitempty"`
	Provider      string   `json:"provider,omitempty"`
	ToolsCount    int      `json:"tools_count"`
	Tools         []string `json:"tools"`
	SystemMessage string   `json:"system_message"`
	MaxIterations int      `json:"max_iterations"`
	FailedSources []string `json:"failed_sources,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// Service owns the agent. It initializes at most once successfully; a
// failed initialization is retried by the next EnsureReady.
type Service struct {
	config      Config
	newProvider ProviderFunc
	sources     []Source
	logger      *slog.Logger
	lc          lifecycle.Lifecycle

	mu     sync.RWMutex
	agent  *Agent
	failed []string
}

// NewService creates an uninitialized service. Sources load in order.
func NewService(config Config, newProvider ProviderFunc, sources []Source, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		config:      config,
		newProvider: newProvider,
		sources:     sources,
		logger:      logger.With("component", "agent"),
	}
}

// EnsureReady builds the registry and the agent unless already done.
// Concurrent callers share one attempt. The returned error wraps
// ErrNotReady and the cause.
func (s *Service) EnsureReady(ctx context.Context) error {
	if err := s.lc.Ensure(ctx, s.initialize); err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	return nil
}

func (s *Service) initialize(ctx context.Context) error {
	start := time.Now()
	s.logger.Info("initializing agent service", "sources", len(s.sources))

	if s.newProvider == nil {
		return fmt.Errorf("no model provider configured")
	}
	provider, err := s.newProvider()
	if err != nil {
		return fmt.Errorf("failed to create model provider: %w", err)
	}

	builder := NewBuilder(s.config.Name).
		SystemPrompt(s.config.SystemPrompt).
		MaxIterations(s.config.MaxIterations).
		ToolConfig(s.config.ToolConfig).
		Logger(s.logger)

	var failed []string
	for _, src := range s.sources {
		list, err := src.Load(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("tool source failed to load", "source", src.Name, "error", err)
			failed = append(failed, src.Name)
			continue
		}
		builder.Tools(list)
		s.logger.Info("tool source loaded", "source", src.Name, "tools", len(list))
	}

	agent, err := builder.Build(provider)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.agent = agent
	s.failed = failed
	s.mu.Unlock()

	s.logger.Info("agent service ready",
		"provider", provider.Name(), "model", provider.Model(),
		"tools", agent.Registry().Len(), "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// Agent returns the agent, or ErrNotReady before a successful EnsureReady.
func (s *Service) Agent() (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.agent == nil {
		if err := s.lc.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotReady, err)
		}
		return nil, ErrNotReady
	}
	return s.agent, nil
}

// State returns the lifecycle state.
func (s *Service) State() lifecycle.State { return s.lc.State() }

// Err returns the last initialization error, if any.
func (s *Service) Err() error { return s.lc.Err() }

// Ready reports whether the agent is usable.
func (s *Service) Ready() bool { return s.lc.State() == lifecycle.Ready }

// Info reports the current status.
func (s *Service) Info() Info {
	s.mu.RLock()
	agent, failed := s.agent, s.failed
	s.mu.RUnlock()

	info := Info{
		Initialized:   s.Ready() && agent != nil,
		State:         s.lc.State().String(),
		Tools:         []string{},
		SystemMessage: s.config.SystemPrompt,
		MaxIterations: s.config.iterationLimit(),
		FailedSources: failed,
	}
	if agent != nil {
		info.Model = agent.Model()
		info.Provider = agent.ProviderName()
		info.ToolsCount = agent.Registry().Len()
		info.Tools = agent.Registry().Names()
	}
	if err := s.lc.Err(); err != nil {
		info.Error = err.Error()
	}
	return info
}
