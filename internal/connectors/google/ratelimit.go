package google

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig sets the sustained request rate and burst for one
// credential's calls.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultDriveRateLimit stays below Drive's 10 requests/sec/user quota.
var DefaultDriveRateLimit = RateLimitConfig{RequestsPerSecond: 8.0, BurstSize: 10}

// defaultPause applies when a 429 carries no Retry-After.
const defaultPause = 60 * time.Second

// RateLimiter is a token bucket that can also be paused outright after the
// provider reports a quota breach.
type RateLimiter struct {
	bucket *rate.Limiter
	now    func() time.Time

	mu    sync.Mutex
	until time.Time
}

// NewRateLimiter creates a limiter. Non-positive settings take the Drive
// defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	rps, burst := cfg.RequestsPerSecond, cfg.BurstSize
	if rps <= 0 {
		rps = DefaultDriveRateLimit.RequestsPerSecond
	}
	if burst <= 0 {
		burst = DefaultDriveRateLimit.BurstSize
	}
	return &RateLimiter{bucket: rate.NewLimiter(rate.Limit(rps), burst), now: time.Now}
}

// PauseFor holds every caller for d, or defaultPause when d is not positive.
// A shorter pause never cuts an existing one short.
func (r *RateLimiter) PauseFor(d time.Duration) {
	if d <= 0 {
		d = defaultPause
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if until := r.now().Add(d); until.After(r.until) {
		r.until = until
	}
}

// Paused reports how long the current pause has left.
func (r *RateLimiter) Paused() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if left := r.until.Sub(r.now()); left > 0 {
		return left
	}
	return 0
}

// Wait blocks until any pause has passed and a token is available.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if left := r.Paused(); left > 0 {
		t := time.NewTimer(left)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return r.bucket.Wait(ctx)
}
