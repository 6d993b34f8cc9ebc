// Package ratelimit provides the smooth request gate used by the crawl
// workers. The bucket holds at most one token, so long idle periods never
// produce a burst of catch-up requests.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// FastPathRate is the sentinel refill rate used when no delay is
// configured. Callers may skip Acquire entirely at this rate.
const FastPathRate = 100

// Limiter is a token bucket of capacity 1 with an atomically updatable
// refill rate.
type Limiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	rps     float64
}

// New creates a limiter refilling at rps tokens per second. A rate of 0
// or less selects the fast-path sentinel.
func New(rps float64) *Limiter {
	if rps <= 0 {
		rps = FastPathRate
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		rps:     rps,
	}
}

// Acquire blocks until a token is available or the context is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	lim := l.limiter
	l.mu.Unlock()
	return lim.Wait(ctx)
}

// UpdateRate atomically changes the refill rate. In-flight waiters keep
// their reservation; the new rate applies from the next Acquire.
func (l *Limiter) UpdateRate(rps float64) {
	if rps <= 0 {
		rps = FastPathRate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rps = rps
	l.limiter.SetLimit(rate.Limit(rps))
}

// Rate returns the current refill rate in tokens per second.
func (l *Limiter) Rate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rps
}

// FastPath reports whether callers may bypass Acquire.
func (l *Limiter) FastPath() bool {
	return l.Rate() >= FastPathRate
}
