package agent

import (
	"context"
	"errors"
	"iter"

	"github.com/richinex/agentrag/conversation"
)

// Stream runs the loop in streaming mode and yields its steps: one start
// event, an agent event per model turn followed by a tool event per tool
// result, then exactly one end or error event. Each iteration over the
// returned sequence starts a fresh run. Stopping early cancels the run.
func (a *Agent) Stream(ctx context.Context, history conversation.Conversation, text string) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		if !yield(startEvent()) {
			return
		}

		result, err := a.run(ctx, history, text, true, yield)
		switch {
		case errors.Is(err, errStopped):
			a.logger.Debug("stream stopped by consumer")
		case err != nil:
			a.logger.Warn("stream failed", "error", err)
			yield(errorEvent(err))
		default:
			yield(endEvent(result))
		}
	}
}
