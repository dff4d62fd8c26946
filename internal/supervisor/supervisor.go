// Package supervisor restarts the agent whenever a session ends, after a
// fixed delay. It is the only retry policy in the agent.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"screenagent/internal/clock"
)

const DefaultRestartDelay = 5 * time.Second

// Options configures Run. Zero values select the defaults.
type Options struct {
	RestartDelay time.Duration
	Clock        clock.Clock
	Logger       *slog.Logger
}

// Run calls fn until ctx is cancelled. Whatever way fn ends (nil, error or
// panic) it is relaunched after RestartDelay. Run returns ctx.Err().
func Run(ctx context.Context, opts Options, fn func(context.Context) error) error {
	delay := opts.RestartDelay
	if delay <= 0 {
		delay = DefaultRestartDelay
	}
	c := opts.Clock
	if c == nil {
		c = clock.Real()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	for attempt := 1; ; attempt++ {
		err := runOnce(ctx, fn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			logger.Error("agent stopped", "error", err, "attempt", attempt, "restart_in", delay)
		} else {
			logger.Info("agent session ended", "attempt", attempt, "restart_in", delay)
		}
		select {
		case <-c.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func runOnce(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent crashed: %v", r)
		}
	}()
	return fn(ctx)
}
