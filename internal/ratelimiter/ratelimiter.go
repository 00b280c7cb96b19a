// Package ratelimiter bounds the request rate accepted by the server.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter applies a token bucket to incoming requests.
//
// Tokens replenish at the sustained rate; the burst size is the bucket
// capacity and bounds momentary spikes. All methods are safe for
// concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing requestsPerSecond sustained with the
// given burst capacity. A zero rate disables limiting.
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = requestsPerSecond
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow reports whether one request may proceed now, consuming a token
// when it may. Callers reject the request when it returns false.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or the context is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Tokens returns the number of tokens currently available. Intended for
// monitoring; the value is stale as soon as it is read.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
