package retry

import (
	"context"
	"log/slog"
)

// Operation is a single retriable unit of work.
type Operation func(ctx context.Context) error

// Strategy runs operations under a retry policy. The policy is data
// (attempts, delays, backoff), not inline control flow, so the ledger fetch
// path and the segment writer share one implementation.
type Strategy interface {
	// Execute runs the operation until it succeeds, the policy is
	// exhausted, or the context is cancelled.
	Execute(ctx context.Context, op Operation) error

	// Name returns the strategy name for logging.
	Name() string
}

// AttemptFunc is notified after each failed attempt with the attempt number
// (1-based) and the error. The segment writer uses it to record how many
// attempts a segment consumed before giving up.
type AttemptFunc func(attempt int, err error)

// NewStrategy builds a strategy from configuration.
func NewStrategy(cfg Config) Strategy {
	if !cfg.Enabled {
		slog.Info("Retry disabled, operations run once")
		return NewNoRetryStrategy()
	}
	slog.Info("Retry enabled with exponential backoff",
		"max_attempts", cfg.MaxAttempts,
		"initial_delay", cfg.InitialDelay,
		"max_delay", cfg.MaxDelay,
	)
	return NewExponentialBackoff(cfg)
}
