// Agent configuration types.
//
// Information Hiding:
// - Default values hidden
// - System prompt merging rules hidden

package agent

import (
	"strings"

	"github.com/richinex/agentrag/tools"
)

// DefaultMaxIterations bounds a run when no limit is configured.
const DefaultMaxIterations = 10

// Config holds agent configuration.
type Config struct {
	// Name identifies the agent in logs and /info.
	Name string

	// SystemPrompt is prepended to every run. Empty means none.
	SystemPrompt string

	// MaxIterations caps model calls per run.
	MaxIterations int

	// ToolConfig controls per-call timeout and retries.
	ToolConfig tools.ToolConfig
}

// DefaultConfig returns a basic agent configuration.
func DefaultConfig() Config {
	return Config{
		Name:          "agentrag",
		MaxIterations: DefaultMaxIterations,
		ToolConfig:    tools.DefaultToolConfig(),
	}
}

// HasSystemPrompt returns true if a system prompt is configured.
func (c *Config) HasSystemPrompt() bool {
	return strings.TrimSpace(c.SystemPrompt) != ""
}

// iterationLimit returns MaxIterations, falling back to the default.
func (c *Config) iterationLimit() int {
	if c.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return c.MaxIterations
}

// mergeSystemPrompt joins the configured prompt with one supplied in the
// conversation history. The configured prompt comes first.
func mergeSystemPrompt(configured, fromHistory string) string {
	configured = strings.TrimSpace(configured)
	fromHistory = strings.TrimSpace(fromHistory)
	switch {
	case configured == "":
		return fromHistory
	case fromHistory == "":
		return configured
	default:
		return configured + "\n\n" + fromHistory
	}
}
