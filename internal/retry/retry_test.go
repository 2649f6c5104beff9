package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")

func alwaysRetry(error) bool { return true }

func TestSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	got, err := WithRetry(context.Background(), Config{MaxAttempts: 3, InitialDelay: time.Millisecond}, alwaysRetry, func() (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetriesUntilSuccess(t *testing.T) {
	calls := 0
	got, err := WithRetry(context.Background(), Config{MaxAttempts: 5, InitialDelay: time.Millisecond, Multiplier: 2}, alwaysRetry, func() (string, error) {
		calls++
		if calls < 3 {
			return "", errTransient
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("expected ok, got %q", got)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestExhaustsAttemptBudget(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), Config{MaxAttempts: 3, InitialDelay: time.Millisecond}, alwaysRetry, func() (int, error) {
		calls++
		return 0, errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("expected the last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestStopsOnNonRetryableError(t *testing.T) {
	definitive := errors.New("definitive")
	calls := 0
	_, err := WithRetry(context.Background(), Config{MaxAttempts: 5, InitialDelay: time.Millisecond},
		func(err error) bool { return errors.Is(err, errTransient) },
		func() (int, error) {
			calls++
			return 0, definitive
		})
	if !errors.Is(err, definitive) {
		t.Fatalf("expected the definitive error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := WithRetry(ctx, Config{MaxAttempts: 10, InitialDelay: time.Hour}, alwaysRetry, func() (int, error) {
		calls++
		cancel()
		return 0, errTransient
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call before the backoff wait, got %d", calls)
	}
}

func TestZeroConfigStillRunsOnce(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), Config{}, alwaysRetry, func() (int, error) {
		calls++
		return 0, errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("expected the error back, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call, got %d", calls)
	}
}
