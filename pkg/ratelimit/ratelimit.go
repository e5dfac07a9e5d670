// Package ratelimit paces outbound Upbit API calls.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps golang.org/x/time/rate.Limiter for API request pacing.
// Upbit enforces per-IP request quotas, so every client call goes through
// Wait before hitting the network.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing the given number of requests per second,
// with a burst of one so calls are spaced evenly rather than front-loaded.
func New(requestsPerSecond int) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// Wait blocks until the next request may proceed or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed without blocking.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}
