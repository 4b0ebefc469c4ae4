package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ExponentialBackoff retries with a doubling delay capped at MaxDelay.
type ExponentialBackoff struct {
	cfg       Config
	onAttempt AttemptFunc
}

// NewExponentialBackoff creates a strategy from the given policy.
func NewExponentialBackoff(cfg Config) *ExponentialBackoff {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &ExponentialBackoff{cfg: cfg}
}

// WithAttemptFunc returns a copy of the strategy that notifies fn after each
// failed attempt.
func (s *ExponentialBackoff) WithAttemptFunc(fn AttemptFunc) *ExponentialBackoff {
	cp := *s
	cp.onAttempt = fn
	return &cp
}

// Execute runs the operation under the policy. Non-recoverable errors fail
// immediately without consuming the retry budget.
func (s *ExponentialBackoff) Execute(ctx context.Context, op Operation) error {
	var lastErr error
	delay := s.cfg.InitialDelay

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				slog.Info("Operation succeeded after retry",
					"attempt", attempt,
					"max_attempts", s.cfg.MaxAttempts)
			}
			return nil
		}

		lastErr = err
		if s.onAttempt != nil {
			s.onAttempt(attempt, err)
		}

		if !isRecoverable(err) {
			slog.Error("Non-recoverable error, failing immediately",
				"error", err,
				"attempt", attempt)
			return err
		}

		if attempt >= s.cfg.MaxAttempts {
			break
		}

		slog.Warn("Operation failed, backing off",
			"attempt", attempt,
			"max_attempts", s.cfg.MaxAttempts,
			"retry_in", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry interrupted: %w", ctx.Err())
		case <-time.After(delay):
			delay *= 2
			if delay > s.cfg.MaxDelay {
				delay = s.cfg.MaxDelay
			}
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", s.cfg.MaxAttempts, lastErr)
}

// Name returns the strategy name.
func (s *ExponentialBackoff) Name() string {
	return "ExponentialBackoff"
}

// TransientError marks an error as retriable regardless of its text.
// Callers that know a failure is transient (the submit adapter, for one)
// wrap it so pattern matching is not the only signal.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError. Returns nil for nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// isRecoverable reports whether an error is transient and worth retrying.
// Context cancellation and validation-class errors are not.
func isRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	recoverablePatterns := []string{
		"connection reset by peer",
		"connection refused",
		"timeout",
		"temporary failure",
		"network is unreachable",
		"broken pipe",
		"i/o timeout",
		"eof",
		"tls handshake timeout",
		"no such host",
		"connection timed out",
		"dial tcp",
		"too many requests",
		"service unavailable",
		"bad gateway",
	}
	for _, pattern := range recoverablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
