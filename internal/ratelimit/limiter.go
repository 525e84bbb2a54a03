// Package ratelimit throttles outbound calls to the upstream stats provider.
//
// The provider publishes no rate limits and throttles aggressively, so every
// upstream call must hold a slot from this limiter. Callers over budget are
// suspended rather than rejected; backpressure is the point.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Config describes the outbound call budget: CallsPerWindow calls per rolling
// window of WindowSeconds.
type Config struct {
	CallsPerWindow int
	WindowSeconds  float64
}

// Limiter enforces the configured budget. It is safe for concurrent use and
// is created per Fetcher instance rather than process-wide, so independent
// test instances never interfere.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter from the given budget.
func New(cfg Config) (*Limiter, error) {
	if cfg.CallsPerWindow <= 0 {
		return nil, fmt.Errorf("calls_per_window must be > 0 (got %d)", cfg.CallsPerWindow)
	}
	if cfg.WindowSeconds <= 0 {
		return nil, fmt.Errorf("window_seconds must be > 0 (got %g)", cfg.WindowSeconds)
	}

	// Burst equals the per-window budget: a full window's worth of calls may
	// go out back to back, then callers block on the refill rate.
	limit := rate.Limit(float64(cfg.CallsPerWindow) / cfg.WindowSeconds)
	return &Limiter{
		limiter: rate.NewLimiter(limit, cfg.CallsPerWindow),
	}, nil
}

// Unlimited returns a limiter that never blocks, for tests where the budget
// is not under test.
func Unlimited() *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

// Wait blocks until the limiter permits an outbound call. It returns an error
// only if the context is canceled before a slot frees up.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether a call may happen now without blocking.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}
