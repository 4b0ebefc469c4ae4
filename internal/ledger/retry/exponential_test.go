package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testConfig(attempts int) Config {
	return Config{
		Enabled:      true,
		MaxAttempts:  attempts,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
	}
}

func TestExponentialBackoff_Success(t *testing.T) {
	strategy := NewExponentialBackoff(testConfig(3))

	err := strategy.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

func TestExponentialBackoff_SuccessAfterRetries(t *testing.T) {
	strategy := NewExponentialBackoff(testConfig(5))

	attempts := 0
	err := strategy.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	if err != nil {
		t.Errorf("Expected no error after retries, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestExponentialBackoff_NonRecoverableError(t *testing.T) {
	strategy := NewExponentialBackoff(testConfig(5))

	attempts := 0
	err := strategy.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("invalid payload")
	})
	if err == nil {
		t.Error("Expected error for non-recoverable failure")
	}
	if attempts != 1 {
		t.Errorf("Expected only 1 attempt for non-recoverable error, got: %d", attempts)
	}
}

func TestExponentialBackoff_TransientMarkerIsRetried(t *testing.T) {
	strategy := NewExponentialBackoff(testConfig(3))

	attempts := 0
	err := strategy.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return Transient(errors.New("submit rejected by node"))
	})
	if err == nil {
		t.Error("Expected error after exhausting attempts")
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts for transient error, got: %d", attempts)
	}
}

func TestExponentialBackoff_AttemptFuncCountsFailures(t *testing.T) {
	var recorded []int
	strategy := NewExponentialBackoff(testConfig(4)).WithAttemptFunc(func(attempt int, err error) {
		recorded = append(recorded, attempt)
	})

	_ = strategy.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("timeout")
	})

	if len(recorded) != 4 {
		t.Fatalf("Expected 4 recorded attempts, got: %d", len(recorded))
	}
	for i, attempt := range recorded {
		if attempt != i+1 {
			t.Errorf("Expected attempt %d at position %d, got: %d", i+1, i, attempt)
		}
	}
}

func TestExponentialBackoff_ContextCancellation(t *testing.T) {
	strategy := NewExponentialBackoff(Config{
		Enabled:      true,
		MaxAttempts:  10,
		InitialDelay: time.Second,
		MaxDelay:     time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := strategy.Execute(ctx, func(ctx context.Context) error {
		return errors.New("timeout")
	})
	if err == nil {
		t.Error("Expected error after context cancellation")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Cancellation should interrupt the backoff wait")
	}
}

func TestNoRetryStrategy_SingleAttempt(t *testing.T) {
	strategy := NewNoRetryStrategy()

	attempts := 0
	err := strategy.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("timeout")
	})
	if err == nil {
		t.Error("Expected error from single failed attempt")
	}
	if attempts != 1 {
		t.Errorf("Expected exactly 1 attempt, got: %d", attempts)
	}
}
