package rgw

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter paces radosgw-admin invocations. Every admin command scans
// bucket metadata on the cluster, so an unbounded worker pool would turn the
// collector into a small DoS against the RADOS gateway.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a token-bucket limiter allowing cps commands per
// second with a burst of twice the rate.
func NewRateLimiter(cps int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(cps), cps*2),
	}
}

// Wait blocks until the limiter allows the next command or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow reports whether a command may run now without blocking.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}
