package resilience

import (
	"errors"
	"testing"
	"time"
)

// quickRetryConfig keeps test backoffs in the low milliseconds.
func quickRetryConfig(maxAttempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetryFirstAttemptSucceeds(t *testing.T) {
	attempts := 0
	err := Retry(func() error {
		attempts++
		return nil
	}, quickRetryConfig(3), nil)

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	attempts := 0
	err := Retry(func() error {
		attempts++
		if attempts < 3 {
			return errors.New("store unavailable")
		}
		return nil
	}, quickRetryConfig(3), nil)

	if err != nil {
		t.Errorf("Expected recovery within the attempt budget, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetrySingleRetryBudget(t *testing.T) {
	// The chunk persistence path allows exactly one retry
	attempts := 0
	err := Retry(func() error {
		attempts++
		return errors.New("store unavailable")
	}, quickRetryConfig(2), nil)

	if err == nil {
		t.Error("Expected error once the attempt budget is exhausted")
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	attempts := 0
	err := Retry(func() error {
		attempts++
		return errors.New("recording not found")
	}, quickRetryConfig(3), func(err error) bool {
		return false
	})

	if err == nil {
		t.Error("Expected the error to surface")
	}
	if attempts != 1 {
		t.Errorf("Expected a non-retryable error to stop after 1 attempt, got %d", attempts)
	}
}

func TestRetryExhaustsRetryableError(t *testing.T) {
	attempts := 0
	err := Retry(func() error {
		attempts++
		return errors.New("connection reset")
	}, quickRetryConfig(3), IsRetryableNetworkError)

	if err == nil {
		t.Error("Expected error after the last attempt")
	}
	if attempts != 3 {
		t.Errorf("Expected all 3 attempts, got %d", attempts)
	}
}

func TestRetryWithExponentialBackoff(t *testing.T) {
	attempts := 0
	err := RetryWithExponentialBackoff(func() error {
		attempts++
		if attempts == 1 {
			return errors.New("store unavailable")
		}
		return nil
	}, 3, time.Millisecond)

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestIsRetryableNetworkError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"context deadline", errors.New("context deadline exceeded"), true},
		{"io timeout", errors.New("i/o timeout"), true},
		{"too many connections", errors.New("pq: too many connections"), true},
		{"rate limited", errors.New("rate limit exceeded"), true},
		{"not found", errors.New("recording not found"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableNetworkError(tt.err); got != tt.retryable {
				t.Errorf("Expected %v for %v, got %v", tt.retryable, tt.err, got)
			}
		})
	}
}

func TestCalculateBackoffGrowsAndCaps(t *testing.T) {
	initial := 10 * time.Millisecond
	max := 80 * time.Millisecond

	if got := CalculateBackoff(0, initial, max, 2.0); got != 10*time.Millisecond {
		t.Errorf("Expected 10ms for attempt 0, got %v", got)
	}
	if got := CalculateBackoff(2, initial, max, 2.0); got != 40*time.Millisecond {
		t.Errorf("Expected 40ms for attempt 2, got %v", got)
	}
	if got := CalculateBackoff(6, initial, max, 2.0); got != max {
		t.Errorf("Expected backoff capped at %v, got %v", max, got)
	}
}

func TestRetryableErrorWrapping(t *testing.T) {
	cause := errors.New("store unavailable")
	wrapped := NewRetryableError(cause)

	if wrapped.Error() != "store unavailable" {
		t.Errorf("Expected wrapped message to pass through, got %q", wrapped.Error())
	}
	if !IsRetryable(wrapped) {
		t.Error("Expected wrapped error to report retryable")
	}
	if IsRetryable(cause) {
		t.Error("Expected bare error to not report retryable")
	}
	if !errors.Is(wrapped, cause) {
		t.Error("Expected wrapped error to unwrap to its cause")
	}
	if NewRetryableError(nil) != nil {
		t.Error("Expected nil in, nil out")
	}
}
