package catalog

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket pacing outbound calls to one provider.
// Limits are per provider, not global: a slow catalog must not starve the
// others.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	tokens            float64
	lastUpdate        time.Time

	totalConsumed int64
	totalWaited   time.Duration
}

const limiterWindowSeconds = 60.0

// NewRateLimiter creates a limiter allowing requestsPerMinute calls.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		tokens:            float64(requestsPerMinute),
		lastUpdate:        time.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()

		if r.tokens >= 1.0 {
			r.tokens--
			r.totalConsumed++
			r.mu.Unlock()
			return nil
		}

		tokensNeeded := 1.0 - r.tokens
		refillRate := float64(r.requestsPerMinute) / limiterWindowSeconds
		waitTime := time.Duration(tokensNeeded / refillRate * float64(time.Second))
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
			r.mu.Lock()
			r.totalWaited += waitTime
			r.mu.Unlock()
		}
	}
}

// TryConsume attempts to take a token without blocking.
func (r *RateLimiter) TryConsume() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	if r.tokens >= 1.0 {
		r.tokens--
		r.totalConsumed++
		return true
	}
	return false
}

// Drain empties the bucket, used after a 429 from the provider.
func (r *RateLimiter) Drain() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = 0
}

// Consumed reports how many tokens have been taken.
func (r *RateLimiter) Consumed() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalConsumed
}

// refill adds tokens based on elapsed time. Must be called with lock held.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastUpdate).Seconds()
	r.lastUpdate = now

	r.tokens += elapsed * float64(r.requestsPerMinute) / limiterWindowSeconds
	if r.tokens > float64(r.requestsPerMinute) {
		r.tokens = float64(r.requestsPerMinute)
	}
}
