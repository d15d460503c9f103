package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"showroom_bot/internal/entities"
)

type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Factor    float64
	// Jitter adds up to this fraction of the delay at random.
	Jitter    float64
	Retryable func(error) bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  3,
		BaseDelay: 200 * time.Millisecond,
		MaxDelay:  2 * time.Second,
		Factor:    2,
		Jitter:    0.2,
	}
}

// SendRetryPolicy allows at most one retry for non-idempotent sends. A send that
// timed out may already have been delivered, so timeouts are not retried.
func SendRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  2,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  500 * time.Millisecond,
		Factor:    1,
		Retryable: func(err error) bool {
			return IsTransient(err) && !errors.Is(err, entities.ErrDependencyTimeout)
		},
	}
}

// NoRetry runs the call exactly once.
func NoRetry() RetryPolicy {
	return RetryPolicy{Attempts: 1}
}

// Backoff returns the delay after the given 1-based attempt, before jitter.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	factor := p.Factor
	if factor < 1 {
		factor = 2
	}
	d := float64(p.BaseDelay) * math.Pow(factor, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.Backoff(attempt)
	if p.Jitter > 0 && d > 0 {
		d += time.Duration(rand.Float64() * p.Jitter * float64(d))
	}
	return d
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsRetryable(err)
}

// Retry calls fn until it succeeds, the attempts run out, the error is not
// retryable, or ctx is done. The last error is returned.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil || attempt >= attempts || !p.retryable(err) {
			return err
		}

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as safe to retry.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// IsRetryable reports whether a failed call may be attempted again. Open circuits
// are never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, entities.ErrDependencyUnavailable) {
		return false
	}
	if errors.Is(err, entities.ErrDependencyTimeout) {
		return true
	}
	return IsTransient(err)
}
