// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup
//
// Startup checks live in Validate so that commands which never call a
// model (seed, tools) can run without an API key.

package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/richinex/agentrag/internal/logging"
)

// Settings holds all application configuration.
type Settings struct {
	LLM       LLMConfig
	Agent     AgentConfig
	SQL       SQLConfig
	Database  DatabaseConfig
	Retrieval RetrievalConfig
	API       APIConfig
	Log       LogConfig
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	MaxTokens   uint32
	Temperature float64
}

// AgentConfig holds agent execution configuration.
type AgentConfig struct {
	SystemMessage  string
	MaxIterations  int
	ToolTimeout    time.Duration
	ToolMaxRetries uint32
	// MCPConfigPath names an optional file of MCP servers whose tools are
	// added to the registry.
	MCPConfigPath string
}

// SQLConfig configures the model behind the music database tool.
type SQLConfig struct {
	ModelName string
	MaxTokens uint32
	MaxRows   int
}

// DatabaseConfig locates the SQLite files.
type DatabaseConfig struct {
	CRMPath     string
	ChinookPath string
}

// RetrievalConfig configures the document index.
type RetrievalConfig struct {
	Enabled         bool
	URLsFile        string
	AdditionalURLs  []string
	ChunkSize       int
	ChunkOverlap    int
	CacheEnabled    bool
	CachePath       string
	CacheTTL        time.Duration
	EmbeddingModel  string
	ToolName        string
	ToolDescription string
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Host             string
	Port             int
	CORSEnabled      bool
	CORSAllowOrigins []string
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int
	ShutdownTimeout  time.Duration
}

// Addr returns host:port.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string
	Format string
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", "gpt-4o", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-chat", "DEEPSEEK_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-2.5-flash", "GEMINI_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

// DefaultProvider is used when LLM_PROVIDER is unset.
const DefaultProvider = "openai"

// Load creates settings for the provider named by LLM_PROVIDER.
func Load() (Settings, error) {
	return New(getEnvString("LLM_PROVIDER", DefaultProvider))
}

// New creates settings for the specified provider, loading values from environment variables.
// Returns an error if the provider is unknown or environment variables contain invalid values.
func New(provider string) (Settings, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return Settings{}, err
	}

	var p parser
	s := Settings{
		LLM: LLMConfig{
			Provider:    provider,
			Model:       getEnvString(info.modelEnv, info.defaultModel),
			APIKey:      os.Getenv(info.apiKeyEnv),
			MaxTokens:   p.uint32("AGENT_MAX_TOKENS", 2000),
			Temperature: p.float64("AGENT_TEMPERATURE", 0.1),
		},
		Agent: AgentConfig{
			SystemMessage:  os.Getenv("AGENT_SYSTEM_MESSAGE"),
			MaxIterations:  p.int("AGENT_MAX_ITERATIONS", 10),
			ToolTimeout:    time.Duration(p.int("TOOL_TIMEOUT_SECS", 30)) * time.Second,
			ToolMaxRetries: p.uint32("TOOL_MAX_RETRIES", 1),
			MCPConfigPath:  os.Getenv("MCP_CONFIG_PATH"),
		},
		SQL: SQLConfig{
			ModelName: getEnvString("SQL_MODEL_NAME", "gpt-3.5-turbo"),
			MaxTokens: p.uint32("SQL_MAX_TOKENS", 2000),
			MaxRows:   p.int("SQL_MAX_ROWS", 50),
		},
		Database: DatabaseConfig{
			CRMPath:     getEnvString("CRM_DATABASE_PATH", "db/crm.db"),
			ChinookPath: getEnvString("CHINOOK_DATABASE_PATH", "db/chinook.db"),
		},
		Retrieval: RetrievalConfig{
			Enabled:         p.bool("FAISS_ENABLED", true),
			URLsFile:        getEnvString("FAISS_URLS_FILE", "urls.txt"),
			AdditionalURLs:  getEnvList("FAISS_ADDITIONAL_URLS", nil),
			ChunkSize:       p.int("FAISS_CHUNK_SIZE", 1000),
			ChunkOverlap:    p.int("FAISS_CHUNK_OVERLAP", 200),
			CacheEnabled:    p.bool("FAISS_CACHE_ENABLED", true),
			CachePath:       getEnvString("FAISS_CACHE_PATH", ".faiss_cache/faiss_index"),
			CacheTTL:        time.Duration(p.int("FAISS_CACHE_TTL_DAYS", 7)) * 24 * time.Hour,
			EmbeddingModel:  getEnvString("EMBEDDING_MODEL", "text-embedding-3-small"),
			ToolName:        os.Getenv("FAISS_TOOL_NAME"),
			ToolDescription: os.Getenv("FAISS_TOOL_DESCRIPTION"),
		},
		API: APIConfig{
			Host:             getEnvString("API_HOST", "0.0.0.0"),
			Port:             p.int("API_PORT", 9080),
			CORSEnabled:      p.bool("CORS_ENABLED", true),
			CORSAllowOrigins: getEnvList("CORS_ALLOW_ORIGINS", []string{"http://localhost:3000", "http://localhost:8080"}),
			RateLimitEnabled: p.bool("RATE_LIMIT_ENABLED", false),
			RateLimitRPS:     p.float64("RATE_LIMIT_RPS", 10),
			RateLimitBurst:   p.int("RATE_LIMIT_BURST", 20),
			ShutdownTimeout:  time.Duration(p.int("API_SHUTDOWN_TIMEOUT_SECS", 15)) * time.Second,
		},
		Log: LogConfig{
			Level:  strings.ToUpper(getEnvString("LOG_LEVEL", "INFO")),
			Format: strings.ToLower(getEnvString("LOG_FORMAT", "text")),
		},
	}
	if p.err != nil {
		return Settings{}, p.err
	}
	return s, nil
}

// MustNew creates settings for the specified provider.
// Panics if the provider is unknown or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// Validate reports every startup problem at once.
func (s Settings) Validate() error {
	var errs []error

	info := providers[s.LLM.Provider]
	if isPlaceholderKey(s.LLM.APIKey) {
		errs = append(errs, fmt.Errorf("%s is not set or is still the placeholder value", info.apiKeyEnv))
	}
	if _, err := logging.ParseLevel(s.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if s.Log.Format != "text" && s.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("invalid log format %q, must be 'text' or 'json'", s.Log.Format))
	}
	if s.API.Port < 1024 || s.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid API port %d, must be between 1024 and 65535", s.API.Port))
	}
	if s.Agent.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("AGENT_MAX_ITERATIONS must be positive, got %d", s.Agent.MaxIterations))
	}
	if s.Retrieval.ChunkOverlap >= s.Retrieval.ChunkSize {
		errs = append(errs, fmt.Errorf("FAISS_CHUNK_OVERLAP (%d) must be smaller than FAISS_CHUNK_SIZE (%d)",
			s.Retrieval.ChunkOverlap, s.Retrieval.ChunkSize))
	}
	if s.API.RateLimitEnabled && (s.API.RateLimitRPS <= 0 || s.API.RateLimitBurst <= 0) {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive when rate limiting is enabled"))
	}
	return errors.Join(errs...)
}

func isPlaceholderKey(key string) bool {
	key = strings.TrimSpace(key)
	return key == "" || (strings.HasPrefix(key, "your_") && strings.HasSuffix(key, "_here"))
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first.
func ModelFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}
	return getEnvString(info.modelEnv, info.defaultModel), nil
}

// SupportedProviders returns the supported provider names, sorted.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Environment variable helpers with proper error handling

// parser reads typed variables and keeps the first error.
type parser struct {
	err error
}

func (p *parser) int(key string, defaultVal int) int {
	v, err := getEnvInt(key, defaultVal)
	p.keep(err)
	return v
}

func (p *parser) uint32(key string, defaultVal uint32) uint32 {
	v, err := getEnvUint32(key, defaultVal)
	p.keep(err)
	return v
}

func (p *parser) float64(key string, defaultVal float64) float64 {
	v, err := getEnvFloat64(key, defaultVal)
	p.keep(err)
	return v
}

func (p *parser) bool(key string, defaultVal bool) bool {
	v, err := getEnvBool(key, defaultVal)
	p.keep(err)
	return v
}

func (p *parser) keep(err error) {
	if p.err == nil && err != nil {
		p.err = err
	}
}

func getEnvString(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if strings.TrimSpace(val) == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return b, nil
}
