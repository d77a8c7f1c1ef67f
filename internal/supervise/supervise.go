// Package supervise keeps long-running tasks alive until shutdown.
package supervise

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rewired-gh/gapwatch/internal/logger"
)

var errReturned = errors.New("returned before shutdown")

// Task is a long-running unit of work. Returning nil while ctx is still live
// counts as a failure and the task is restarted.
type Task func(ctx context.Context) error

type Policy struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MinBackoff: time.Second, MaxBackoff: 120 * time.Second}
}

// Run executes task and restarts it after an error, an early return or a
// panic, waiting an exponentially growing delay between attempts. The delay
// resets once an attempt has survived longer than MaxBackoff. Run returns
// when ctx is cancelled.
func Run(ctx context.Context, name string, policy Policy, task Task) {
	delay := policy.MinBackoff
	for {
		started := time.Now()
		err := runOnce(ctx, task)
		if ctx.Err() != nil {
			logger.Debug("Task %s stopped", name)
			return
		}

		if time.Since(started) > policy.MaxBackoff {
			delay = policy.MinBackoff
		}
		if err == nil {
			err = errReturned
		}
		logger.Error("Task %s failed: %v; restarting in %v", name, err, delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, policy.MaxBackoff)
	}
}

func runOnce(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return task(ctx)
}
