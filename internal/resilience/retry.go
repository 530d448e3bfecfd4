package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy controls retry attempts and backoff.
type Policy struct {
	// Attempts is the total number of tries including the first. Values
	// below 1 mean a single try.
	Attempts int
	// BaseDelay is the delay before the first retry. Default: 500ms.
	BaseDelay time.Duration
	// MaxDelay caps the delay. Default: 10s.
	MaxDelay time.Duration
	// Jitter is the random spread as a fraction of the delay (0.25 = ±25%).
	Jitter float64
	// Retryable decides whether an error is worth another try. Nil uses IsTransient.
	Retryable func(err error) bool
	// OnRetry runs before each backoff sleep.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy tries once. Every attempt against a paid provider spends
// budget, so retries are opt-in.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  1,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  10 * time.Second,
		Jitter:    0.25,
	}
}

// Retry runs fn until it succeeds, returns a non-retryable error, the
// attempts run out, or ctx ends. fn receives the 1-based attempt number.
func Retry[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var (
		zero T
		err  error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		var val T
		val, err = fn(ctx, attempt)
		if err == nil {
			return val, nil
		}
		if ctx.Err() != nil || !retryable(err) || attempt == attempts {
			return zero, err
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		timer := time.NewTimer(p.backoff(attempt, err))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
	return zero, err
}

func (p Policy) backoff(attempt int, err error) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	ceiling := p.MaxDelay
	if ceiling <= 0 {
		ceiling = 10 * time.Second
	}

	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if p.Jitter > 0 {
		delay += (rand.Float64()*2 - 1) * delay * p.Jitter
	}
	if ra := RetryAfter(err); ra > 0 && float64(ra) > delay {
		delay = float64(ra)
	}
	if delay > float64(ceiling) {
		delay = float64(ceiling)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// RetryLogger returns an OnRetry callback that logs each retry.
func RetryLogger(provider string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("resilience: retrying provider call",
			zap.String("provider", provider),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
