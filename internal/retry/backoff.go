// Package retry provides exponential backoff and circuit breaker
// patterns for the preflight probe that runs before a terminal session
// process is spawned.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ── Backoff ──────────────────────────────────────────────────────────

// Backoff retries an operation with exponentially growing, optionally
// jittered waits.
type Backoff struct {
	InitialDelay time.Duration // first wait (default 200ms)
	MaxDelay     time.Duration // cap on any wait (default 1s)
	Multiplier   float64       // growth per attempt (default 2.0)
	// MaxAttempts counts the first try.  Zero retries until ctx ends.
	MaxAttempts int
	Jitter      bool // ±25% on each wait

	// Retryable decides whether an error is worth another attempt.
	// Nil retries everything.
	Retryable func(error) bool
	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// ProbeBackoff is the schedule used for preflight dials: a handful of
// quick attempts, since a browser user is waiting.
func ProbeBackoff(retryable func(error) bool) *Backoff {
	return &Backoff{
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		MaxAttempts:  3,
		Jitter:       true,
		Retryable:    retryable,
	}
}

// Do calls fn until it returns nil, returns an error Retryable
// rejects, runs out of attempts, or ctx is done.  attempt is 1-based.
// An error that is not retried is returned unwrapped.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	delay := b.InitialDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	multiplier := b.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	maxDelay := b.MaxDelay
	if maxDelay <= 0 {
		maxDelay = time.Second
	}

	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if b.Retryable != nil && !b.Retryable(err) {
			return err
		}
		if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		wait := delay
		if b.Jitter {
			wait = addJitter(delay)
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}

		delay = time.Duration(math.Min(float64(delay)*multiplier, float64(maxDelay)))
	}
}

// addJitter spreads d by ±25%, never below a millisecond.
func addJitter(d time.Duration) time.Duration {
	quarter := float64(d) * 0.25
	delta := (rand.Float64() * 2 * quarter) - quarter
	return time.Duration(math.Max(float64(d)+delta, float64(time.Millisecond)))
}
