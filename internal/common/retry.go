package common

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// DefaultDelays is the candidate backoff set used between page retries. The
// delay for each attempt is drawn at random from this set so repeated runs do
// not hammer a provider on a fixed cadence.
var DefaultDelays = []time.Duration{
	3 * time.Second,
	4 * time.Second,
	5 * time.Second,
}

// RandomDelay returns a jitter source drawing uniformly from candidates.
func RandomDelay(candidates []time.Duration) func() time.Duration {
	return func() time.Duration {
		return candidates[rand.Intn(len(candidates))]
	}
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	// Delay draws the pause before each retry; defaults to RandomDelay over
	// DefaultDelays.
	Delay func() time.Duration
	// Sleep overrides the blocking sleep, for tests.
	Sleep func(time.Duration)
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
}

// WithRetry executes an operation, retrying up to MaxRetries further attempts
// with a jittered delay between them.
func WithRetry(ctx context.Context, operation func() error, opts RetryOptions) error {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Delay == nil {
		opts.Delay = RandomDelay(DefaultDelays)
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = operation()
		if err == nil {
			return nil
		}
		if attempt == opts.MaxRetries {
			break
		}

		delay := opts.Delay()
		slog.Warn("Operation failed, retrying",
			"attempt", attempt+1,
			"max_retries", opts.MaxRetries,
			"delay", delay,
			"error", err)

		if sleepErr := SleepContext(ctx, delay, opts.Sleep); sleepErr != nil {
			return sleepErr
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrMaxRetries, opts.MaxRetries+1, err)
}

// SleepContext blocks for d, returning early if ctx is canceled. A non-nil
// sleep replaces time.Sleep.
func SleepContext(ctx context.Context, d time.Duration, sleep func(time.Duration)) error {
	if sleep != nil {
		sleep(d)
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
