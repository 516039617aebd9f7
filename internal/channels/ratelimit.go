package channels

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket that paces outbound platform calls. It allows
// a burst up to capacity, then refills at a steady rate.
//
// A nil *RateLimiter, or one with a non-positive rate, never waits.
type RateLimiter struct {
	rate     float64 // tokens per second
	capacity int

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
}

// NewRateLimiter creates a limiter adding rate tokens per second up to
// capacity. Capacity below one is raised to one.
func NewRateLimiter(rate float64, capacity int) *RateLimiter {
	if capacity < 1 {
		capacity = 1
	}
	return &RateLimiter{
		rate:       rate,
		capacity:   capacity,
		tokens:     float64(capacity),
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait := r.reserve()
		if wait <= 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Allow consumes a token if one is available.
func (r *RateLimiter) Allow() bool {
	return r.reserve() <= 0
}

// Tokens returns the current number of available tokens.
func (r *RateLimiter) Tokens() float64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	return r.tokens
}

// reserve takes a token and returns zero, or returns how long until one is
// available without taking it.
func (r *RateLimiter) reserve() time.Duration {
	if r == nil || r.rate <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	if r.tokens >= 1 {
		r.tokens--
		return 0
	}
	needed := 1 - r.tokens
	return time.Duration(needed / r.rate * float64(time.Second))
}

// refill must be called with mu held.
func (r *RateLimiter) refill() {
	now := r.now()
	r.tokens += now.Sub(r.lastRefill).Seconds() * r.rate
	if r.tokens > float64(r.capacity) {
		r.tokens = float64(r.capacity)
	}
	r.lastRefill = now
}
