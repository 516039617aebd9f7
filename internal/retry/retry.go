// Package retry retries calls to rate-limited upstreams (Slack Web API,
// chat-completion endpoints) with backoff, honoring server-provided delays.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Config configures retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int
	// InitialDelay is the delay after the first failure.
	InitialDelay time.Duration
	// MaxDelay caps every delay, including server-provided ones.
	MaxDelay time.Duration
	// Factor is the multiplier for exponential backoff.
	Factor float64
	// Jitter enables randomization of computed delays.
	Jitter bool
}

// DefaultConfig returns a default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Factor:       2.0,
		Jitter:       true,
	}
}

// Result contains the outcome of a retry operation.
type Result struct {
	// Attempts is the number of attempts made.
	Attempts int
	// Err is the last error (nil if successful).
	Err error
	// Duration is the total time spent retrying.
	Duration time.Duration
}

// Do executes op until it succeeds, returns a permanent error, attempts run
// out, or ctx is done.
func Do(ctx context.Context, config Config, op func() error) Result {
	start := time.Now()
	result := Result{}

	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Factor <= 0 {
		config.Factor = 2.0
	}

	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if ctx.Err() != nil {
			result.Err = ctx.Err()
			result.Duration = time.Since(start)
			return result
		}

		err := op()
		if err == nil {
			result.Err = nil
			result.Duration = time.Since(start)
			return result
		}
		result.Err = err

		if IsPermanent(err) || attempt >= config.MaxAttempts {
			break
		}

		sleep := delay
		if config.Jitter {
			// delay * [0.5, 1.5]
			sleep = time.Duration(float64(delay) * (0.5 + rand.Float64())) // #nosec G404 -- jitter does not require cryptographic randomness
		}
		if hint, ok := RetryAfterHint(err); ok {
			sleep = hint
		}
		if sleep > config.MaxDelay {
			sleep = config.MaxDelay
		}

		select {
		case <-ctx.Done():
			result.Err = ctx.Err()
			result.Duration = time.Since(start)
			return result
		case <-time.After(sleep):
		}

		delay = time.Duration(float64(delay) * config.Factor)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	result.Duration = time.Since(start)
	return result
}

// DoWithValue executes an operation that returns a value with retries.
func DoWithValue[T any](ctx context.Context, config Config, op func() (T, error)) (T, Result) {
	var value T
	result := Do(ctx, config, func() error {
		var err error
		value, err = op()
		return err
	})
	return value, result
}

// PermanentError is an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps an error to indicate it should not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent checks if an error is permanent (shouldn't retry).
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}

// AfterError carries the delay an upstream asked for before the next attempt,
// e.g. Slack's Retry-After on a rate-limited call.
type AfterError struct {
	Delay time.Duration
	Err   error
}

func (e *AfterError) Error() string {
	return e.Err.Error()
}

func (e *AfterError) Unwrap() error {
	return e.Err
}

// After wraps err with a server-requested delay.
func After(delay time.Duration, err error) error {
	if err == nil {
		return nil
	}
	return &AfterError{Delay: delay, Err: err}
}

// RetryAfterHint returns the delay carried by an AfterError in err's chain.
func RetryAfterHint(err error) (time.Duration, bool) {
	var after *AfterError
	if errors.As(err, &after) && after.Delay > 0 {
		return after.Delay, true
	}
	return 0, false
}

// Linear creates a config for linear backoff.
func Linear(maxAttempts int, delay time.Duration) Config {
	return Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: delay,
		MaxDelay:     delay * time.Duration(max(maxAttempts, 1)),
		Factor:       1.0,
	}
}

// Exponential creates a config for exponential backoff.
func Exponential(maxAttempts int, initial, maxDelay time.Duration) Config {
	return Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: initial,
		MaxDelay:     maxDelay,
		Factor:       2.0,
		Jitter:       true,
	}
}
