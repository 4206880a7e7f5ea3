package llm

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy configures retry behavior with exponential backoff.
type RetryPolicy struct {
	MaxAttempts  int           // total attempts including the first call
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // cap on a single delay
	Multiplier   float64       // exponential backoff factor
	Jitter       float64       // randomization factor in [0, 1]; 0.3 means ±30%

	// ShouldRetry decides whether a failure is transient. Defaults to
	// IsRetryable. Cancellation is never retried regardless of the predicate.
	ShouldRetry func(err error) bool
	OnRetry     func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns the policy used for calls to the inference
// service: five attempts starting at five seconds, capped at thirty.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: 5 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.3,
		ShouldRetry:  IsRetryable,
	}
}

// Delay returns the nominal delay before retry n (0-indexed), without jitter.
func (p RetryPolicy) Delay(retry int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.multiplier(), float64(retry))
	if p.MaxDelay > 0 {
		d = math.Min(d, float64(p.MaxDelay))
	}
	return time.Duration(d)
}

func (p RetryPolicy) multiplier() float64 {
	if p.Multiplier <= 0 {
		return 2.0
	}
	return p.Multiplier
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.multiplier()
	b.RandomizationFactor = math.Max(0, math.Min(p.Jitter, 1))
	if b.MaxInterval <= 0 {
		b.MaxInterval = backoff.DefaultMaxInterval
	}
	return b
}

// Retry executes fn under policy. Failures the policy deems transient are
// retried with exponential backoff and jitter until MaxAttempts is reached;
// anything else is returned immediately. A cancelled context stops retrying and
// surfaces as an AbortError.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	shouldRetry := policy.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsRetryable
	}
	maxTries := policy.MaxAttempts
	if maxTries < 1 {
		maxTries = 1
	}

	hinted := &hintedBackOff{BackOff: policy.backOff()}
	attempt := 0
	var lastErr error
	op := func() (T, error) {
		attempt++
		if err := ctx.Err(); err != nil {
			var zero T
			lastErr = abortError(err)
			return zero, backoff.Permanent(lastErr)
		}
		result, err := fn(ctx)
		lastErr = err
		if err == nil {
			return result, nil
		}
		if IsCancellation(err) || !shouldRetry(err) {
			return result, backoff.Permanent(err)
		}
		var rl *RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter != nil {
			wait := time.Duration(*rl.RetryAfter * float64(time.Second))
			if policy.MaxDelay > 0 && wait > policy.MaxDelay {
				return result, backoff.Permanent(err)
			}
			hinted.hint = wait
		}
		return result, err
	}

	result, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(hinted),
		backoff.WithMaxTries(uint(maxTries)),
		backoff.WithNotify(func(err error, d time.Duration) {
			if policy.OnRetry != nil {
				policy.OnRetry(err, attempt, d)
			}
		}),
	)
	if err == nil {
		return result, nil
	}
	if lastErr != nil && errors.Is(err, lastErr) {
		return result, err
	}
	// The backoff wait itself was interrupted.
	return result, abortError(err)
}

// hintedBackOff honours a server-provided Retry-After hint by delaying the
// next attempt by at least the hinted duration.
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (b *hintedBackOff) NextBackOff() time.Duration {
	d := b.BackOff.NextBackOff()
	if b.hint > d {
		d = b.hint
	}
	b.hint = 0
	return d
}
