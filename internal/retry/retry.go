// Package retry runs an operation a bounded number of times with exponential
// backoff and reports how it ended.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/googleapis/gax-go/v2"
)

// Status describes how a retried operation finished.
type Status string

const (
	// Succeeded means an attempt returned no error.
	Succeeded Status = "succeeded"
	// Exhausted means every allowed attempt failed with a retryable error.
	Exhausted Status = "exhausted"
	// Stopped means a non-retryable error or context cancellation ended the
	// loop early.
	Stopped Status = "stopped"
)

// Policy bounds a retry loop.
type Policy struct {
	Attempts   int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Retryable decides whether a failed attempt may be repeated. Nil retries
	// every error.
	Retryable func(error) bool
	// OnRetry is called before sleeping ahead of the next attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy is three attempts starting at one second.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   3,
		Initial:    time.Second,
		Max:        10 * time.Second,
		Multiplier: 2,
	}
}

// Outcome is the result of Do.
type Outcome[T any] struct {
	Value    T
	Err      error
	Attempts int
	Status   Status
}

// OK reports whether the operation eventually succeeded.
func (o Outcome[T]) OK() bool {
	return o.Status == Succeeded
}

// Do calls op until it succeeds, returns a non-retryable error, the context
// ends, or the policy's attempts are used up.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) Outcome[T] {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	backoff := gax.Backoff{
		Initial:    p.Initial,
		Max:        p.Max,
		Multiplier: p.Multiplier,
	}

	var out Outcome[T]
	for attempt := 1; attempt <= attempts; attempt++ {
		out.Attempts = attempt

		value, err := op(ctx)
		if err == nil {
			out.Value = value
			out.Err = nil
			out.Status = Succeeded
			return out
		}
		out.Err = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			out.Status = Stopped
			return out
		}
		if p.Retryable != nil && !p.Retryable(err) {
			out.Status = Stopped
			return out
		}
		if attempt == attempts {
			break
		}

		delay := backoff.Pause()
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			out.Err = errors.Join(err, sleepErr)
			out.Status = Stopped
			return out
		}
	}

	out.Status = Exhausted
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
