// Tool Executor with validation, timeouts and retries.
//
// Information Hiding:
// - JSON Schema compilation and caching hidden
// - Retry strategy and backoff hidden
// - Panic recovery hidden; callers always get a ToolResult

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// Executor runs tools with argument validation, a per-attempt timeout and
// bounded retries for transient failures. Safe for concurrent use.
type Executor struct {
	config  ToolConfig
	logger  *slog.Logger
	schemas sync.Map // tool name -> *gojsonschema.Schema
}

// NewExecutor creates a new tool executor with the given configuration.
func NewExecutor(config ToolConfig, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{config: config, logger: logger}
}

// NewDefaultExecutor creates an executor with default configuration.
func NewDefaultExecutor() *Executor {
	return NewExecutor(DefaultToolConfig(), nil)
}

// Execute validates args and runs the tool. It never returns a Go error:
// every failure, including a panic inside the tool, is reported as a failed
// ToolResult whose error wraps an *InvocationError.
func (e *Executor) Execute(ctx context.Context, tool Tool, args json.RawMessage) ToolResult {
	name := tool.Metadata().Name
	if len(strings.TrimSpace(string(args))) == 0 {
		args = json.RawMessage("{}")
	}

	if err := e.validate(tool, args); err != nil {
		return FailureResult(&InvocationError{Tool: name, Err: fmt.Errorf("validation failed: %w", err)})
	}

	attempts := e.config.MaxRetries + 1
	var lastErr error
	for attempt := uint32(0); attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return FailureResult(&InvocationError{Tool: name, Err: ctx.Err()})
			case <-time.After(calculateBackoff(attempt)):
			}
			e.logger.Debug("retrying tool", "tool", name, "attempt", attempt+1, "error", lastErr)
		}

		result, err := e.attempt(ctx, tool, args)
		if err == nil && result.Success() {
			return result
		}
		if err == nil {
			err = result.Error
		}
		lastErr = err

		if ctx.Err() != nil || !shouldRetry(err) {
			break
		}
	}

	e.logger.Warn("tool failed", "tool", name, "error", lastErr)
	if attempts > 1 && shouldRetry(lastErr) && ctx.Err() == nil {
		lastErr = fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
	}
	return FailureResult(&InvocationError{Tool: name, Err: lastErr})
}

// attempt runs one bounded call and converts a panic into an error.
func (e *Executor) attempt(ctx context.Context, tool Tool, args json.RawMessage) (result ToolResult, err error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.AttemptTimeout())
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	result, err = tool.Execute(ctx, args)
	if err == nil && !result.Success() && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("timeout after %s: %w", e.config.AttemptTimeout(), result.Error)
	}
	return result, err
}

// validate checks args against the tool's JSON Schema, then the tool's own
// Validate hook.
func (e *Executor) validate(tool Tool, args json.RawMessage) error {
	meta := tool.Metadata()
	schema, err := e.schema(meta)
	if err != nil {
		return err
	}

	res, err := schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, re := range res.Errors() {
			msgs = append(msgs, re.String())
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	return tool.Validate(args)
}

func (e *Executor) schema(meta ToolMetadata) (*gojsonschema.Schema, error) {
	if cached, ok := e.schemas.Load(meta.Name); ok {
		return cached.(*gojsonschema.Schema), nil
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(meta.Schema()))
	if err != nil {
		return nil, fmt.Errorf("invalid parameter schema for tool '%s': %w", meta.Name, err)
	}
	e.schemas.Store(meta.Name, schema)
	return schema, nil
}

// calculateBackoff returns the backoff duration for the given attempt.
func calculateBackoff(attempt uint32) time.Duration {
	const (
		baseDelay = 100 * time.Millisecond
		maxDelay  = 5 * time.Second
	)

	delay := baseDelay * time.Duration(1<<attempt)
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// shouldRetry reports whether err looks transient.
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errLower := strings.ToLower(err.Error())
	for _, s := range []string{"validation", "invalid", "not found", "not allowed", "permission", "panic"} {
		if strings.Contains(errLower, s) {
			return false
		}
	}
	for _, s := range []string{"timeout", "connection", "network", "temporar", "429", "502", "503", "504"} {
		if strings.Contains(errLower, s) {
			return true
		}
	}
	return false
}
