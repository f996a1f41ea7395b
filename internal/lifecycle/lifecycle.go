// Package lifecycle tracks the initialization state of a lazily started
// service.
//
// Information Hiding:
// - State transitions guarded by a mutex
// - Concurrent first callers collapsed onto one attempt via singleflight
package lifecycle

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// State is the initialization state of a service.
type State int

const (
	// Uninitialized means no attempt has been made yet.
	Uninitialized State = iota
	// Ready means initialization succeeded. Ready is terminal.
	Ready
	// Failed means the last attempt failed. A later Ensure retries.
	Failed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Lifecycle runs an initialization function at most once successfully.
// The zero value is ready to use.
type Lifecycle struct {
	mu      sync.RWMutex
	state   State
	lastErr error
	group   singleflight.Group
}

// Ensure runs init unless the lifecycle is already Ready. Concurrent callers
// share one in-flight attempt and observe its result. The attempt is not
// bound to any caller's cancellation; a caller whose ctx ends stops waiting
// and gets ctx.Err() while the attempt carries on for the others.
func (l *Lifecycle) Ensure(ctx context.Context, init func(ctx context.Context) error) error {
	if l.State() == Ready {
		return nil
	}

	initCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan("init", func() (interface{}, error) {
		// A caller that queued behind a successful attempt lands here.
		if l.State() == Ready {
			return nil, nil
		}

		err := init(initCtx)

		l.mu.Lock()
		defer l.mu.Unlock()
		if err != nil {
			l.state = Failed
			l.lastErr = err
			return nil, err
		}
		l.state = Ready
		l.lastErr = nil
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Err returns the error of the last failed attempt, or nil.
func (l *Lifecycle) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastErr
}
