package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrMaxIterations is wrapped in a *ModelError when a run keeps asking
	// for tools past the configured limit.
	ErrMaxIterations = errors.New("maximum iterations reached without a final answer")

	// ErrNotReady is returned while the agent service cannot be initialized.
	ErrNotReady = errors.New("agent service not ready")
)

// ModelError is a fatal failure of the model capability. It aborts the run.
type ModelError struct {
	Provider string
	Err      error
}

func (e *ModelError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("model call failed: %v", e.Err)
	}
	return fmt.Sprintf("model call failed (%s): %v", e.Provider, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// IsModelError reports whether err is, or wraps, a *ModelError.
func IsModelError(err error) bool {
	var me *ModelError
	return errors.As(err, &me)
}
