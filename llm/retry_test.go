package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
	}
}

func rateLimited() error {
	return ErrorFromStatusCode(429, "resource exhausted", "gemini", "RESOURCE_EXHAUSTED", nil, nil)
}

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{
		InitialDelay: time.Second,
		Multiplier:   2.0,
		MaxDelay:     60 * time.Second,
	}

	delays := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}
	for i, expected := range delays {
		if got := policy.Delay(i); got != expected {
			t.Errorf("retry %d: expected %v, got %v", i, expected, got)
		}
	}
}

func TestRetryPolicyDelayWithMaxCap(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, Multiplier: 2.0, MaxDelay: 5 * time.Second}
	if got := policy.Delay(10); got != 5*time.Second {
		t.Errorf("expected 5s (capped), got %v", got)
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.MaxAttempts != 5 {
		t.Errorf("expected 5 attempts, got %d", p.MaxAttempts)
	}
	if p.InitialDelay != 5*time.Second || p.MaxDelay != 30*time.Second {
		t.Errorf("unexpected delays: initial=%v max=%v", p.InitialDelay, p.MaxDelay)
	}
}

func TestRetryRateLimitedThreeTimesThenSuccess(t *testing.T) {
	calls := 0
	var notified []int
	policy := fastPolicy(5)
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		notified = append(notified, attempt)
	}

	result, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		if calls <= 3 {
			return "", rateLimited()
		}
		return "fourth", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "fourth" {
		t.Errorf("expected %q, got %q", "fourth", result)
	}
	if calls != 4 {
		t.Errorf("expected 4 calls (3 retries), got %d", calls)
	}
	if len(notified) != 3 {
		t.Errorf("expected 3 retry notifications, got %v", notified)
	}
}

func TestRetryNonRetryableError(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(5), func(ctx context.Context) (string, error) {
		calls++
		return "", ErrorFromStatusCode(400, "bad request", "gemini", "", nil, nil)
	})
	var ire *InvalidRequestError
	if !errors.As(err, &ire) {
		t.Fatalf("expected InvalidRequestError, got %T: %v", err, err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryUnknownErrorNotRetried(t *testing.T) {
	calls := 0
	sentinel := errors.New("boom")
	_, err := Retry(context.Background(), fastPolicy(5), func(ctx context.Context) (int, error) {
		calls++
		return 0, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryExhausted(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		return "", ErrorFromStatusCode(503, "unavailable", "gemini", "", nil, nil)
	})
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServerError after exhaustion, got %T: %v", err, err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryCustomPredicate(t *testing.T) {
	calls := 0
	policy := fastPolicy(4)
	policy.ShouldRetry = func(err error) bool { return err.Error() == "flaky" }

	_, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("flaky")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
}

func TestRetryCancellationNeverRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := fastPolicy(5)
	policy.ShouldRetry = func(error) bool { return true }

	_, err := Retry(ctx, policy, func(ctx context.Context) (string, error) {
		calls++
		cancel()
		return "", ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Retry(ctx, fastPolicy(5), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if !IsCancellation(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no calls, got %d", calls)
	}
}

func TestRetryCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}
	policy.OnRetry = func(error, int, time.Duration) { cancel() }

	calls := 0
	_, err := Retry(ctx, policy, func(ctx context.Context) (string, error) {
		calls++
		return "", rateLimited()
	})
	var ae *AbortError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AbortError, got %T: %v", err, err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryAfterBeyondMaxDelayIsNotRetried(t *testing.T) {
	after := 120.0
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(5), func(ctx context.Context) (string, error) {
		calls++
		return "", ErrorFromStatusCode(429, "slow down", "gemini", "", nil, &after)
	})
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %T", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}
