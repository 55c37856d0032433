package delivery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastPolicy(attempts int) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Millisecond,
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	policy := DefaultRetryPolicy()

	if !policy.ShouldRetry(errors.New("connection refused"), 1) {
		t.Error("expected connection error to be retryable")
	}
	if policy.ShouldRetry(errors.New("error"), 4) {
		t.Error("should not retry after max attempts")
	}

	for attempt, want := range map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second} {
		if got := policy.NextDelay(attempt); got != want {
			t.Errorf("attempt %d: expected %v, got %v", attempt, want, got)
		}
	}

	capped := &RetryPolicy{MaxAttempts: 10, InitialDelay: time.Second, Multiplier: 10, MaxDelay: 30 * time.Second}
	if d := capped.NextDelay(5); d != capped.MaxDelay {
		t.Errorf("expected delay capped at %v, got %v", capped.MaxDelay, d)
	}
}

func TestRetryPolicyClassification(t *testing.T) {
	policy := DefaultRetryPolicy()

	permanent := []error{
		errors.New("Bad Request: chat not found"),
		errors.New("Forbidden: bot was blocked by the user"),
		errors.New("invalid chat id"),
		errors.New("Unauthorized"),
		context.Canceled,
		fmt.Errorf("send: %w", context.DeadlineExceeded),
		nil,
	}
	for _, err := range permanent {
		if policy.ShouldRetry(err, 1) {
			t.Errorf("expected %v to be permanent", err)
		}
	}

	transient := []error{
		errors.New("Too Many Requests: retry after 3"),
		errors.New("read tcp: connection reset by peer"),
		errors.New("i/o timeout"),
		errors.New("something odd"),
	}
	for _, err := range transient {
		if !policy.ShouldRetry(err, 1) {
			t.Errorf("expected %v to be retryable", err)
		}
	}
}

func TestRetryPolicyExecuteSuccess(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Execute(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary failure")
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryPolicyExecuteNonRetryable(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Execute(context.Background(), func() error {
		calls++
		return errors.New("chat not found")
	})
	if err == nil {
		t.Error("expected error for non-retryable failure")
	}
	if calls != 1 {
		t.Errorf("expected 1 call for non-retryable error, got %d", calls)
	}
}

func TestRetryPolicyExecuteAllFail(t *testing.T) {
	calls := 0
	err := fastPolicy(2).Execute(context.Background(), func() error {
		calls++
		return errors.New("timeout")
	})
	if err == nil {
		t.Error("expected error after all attempts exhausted")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestRetryPolicyExecuteCancelled(t *testing.T) {
	policy := &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Hour, Multiplier: 1, MaxDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- policy.Execute(ctx, func() error {
			calls++
			return errors.New("timeout")
		})
	}()
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected last error after cancellation")
		}
		if calls != 1 {
			t.Errorf("expected 1 call before cancellation, got %d", calls)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not stop on cancellation")
	}
}
