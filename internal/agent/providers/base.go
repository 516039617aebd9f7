package providers

import (
	"context"
	"time"

	"github.com/zapdoslabs/relay/internal/retry"
)

// BaseProvider holds shared retry configuration for LLM providers.
type BaseProvider struct {
	name       string
	maxRetries int
	retryDelay time.Duration
}

// NewBaseProvider creates a base provider with sane defaults.
func NewBaseProvider(name string, maxRetries int, retryDelay time.Duration) BaseProvider {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return BaseProvider{
		name:       name,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// Name returns the provider name.
func (b *BaseProvider) Name() string {
	return b.name
}

// Retry executes op with linear backoff while isRetryable reports true.
// It returns the last error.
func (b *BaseProvider) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	if op == nil {
		return nil
	}
	result := retry.Do(ctx, retry.Linear(b.maxRetries, b.retryDelay), func() error {
		err := op()
		if err != nil && (isRetryable == nil || !isRetryable(err)) {
			return retry.Permanent(err)
		}
		return err
	})
	if perm, ok := result.Err.(*retry.PermanentError); ok {
		return perm.Err
	}
	return result.Err
}
