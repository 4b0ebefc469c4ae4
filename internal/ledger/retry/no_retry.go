package retry

import "context"

// NoRetryStrategy runs the operation exactly once. Used when retries are
// disabled by configuration.
type NoRetryStrategy struct{}

// NewNoRetryStrategy creates a NoRetryStrategy.
func NewNoRetryStrategy() *NoRetryStrategy {
	return &NoRetryStrategy{}
}

// Execute runs the operation once without retrying.
func (s *NoRetryStrategy) Execute(ctx context.Context, op Operation) error {
	return op(ctx)
}

// Name returns the strategy name.
func (s *NoRetryStrategy) Name() string {
	return "NoRetry"
}
