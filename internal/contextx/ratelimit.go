package contextx

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// OutboundLimiter throttles calls agentctl makes to the outside world:
// config repo git clone/pull (bucket "registry") and installer subprocess
// invocations (bucket "installer").
// Adapted from the teacher's internal/auth.RateLimiter (a per-token bucket
// guarding inbound HTTP requests); generalized here to a small set of named
// buckets guarding outbound calls instead, since agentctl has no inbound API
// to rate-limit.
type OutboundLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewOutboundLimiter creates a limiter allowing rps requests/second per
// named bucket, with the given burst allowance.
func NewOutboundLimiter(rps float64, burst int) *OutboundLimiter {
	return &OutboundLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// DefaultOutboundLimiter mirrors the teacher's DefaultRateLimiter defaults
// (10 req/s, burst 20), reused here for git and installer traffic.
func DefaultOutboundLimiter() *OutboundLimiter {
	return NewOutboundLimiter(10, 20)
}

func (l *OutboundLimiter) bucket(name string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[name]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[name] = lim
	}
	return lim
}

// Wait blocks until bucket name has capacity for one call, or ctx is done.
func (l *OutboundLimiter) Wait(ctx context.Context, name string) error {
	return l.bucket(name).Wait(ctx)
}
