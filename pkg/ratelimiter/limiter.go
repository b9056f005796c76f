package ratelimiter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// KeyedLimiter maintains one token bucket per caller key (API key or remote
// address). Buckets are created lazily and kept for the process lifetime; the
// key space is bounded by the configured client population.
type KeyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func NewKeyedLimiter(rps, burst int) *KeyedLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = rps
	}
	return &KeyedLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (k *KeyedLimiter) limiter(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.limiters[key]
	if !ok {
		l = rate.NewLimiter(k.rps, k.burst)
		k.limiters[key] = l
	}
	return l
}

// Allow reports whether key may proceed without blocking.
func (k *KeyedLimiter) Allow(key string) bool {
	return k.limiter(key).Allow()
}

// Wait blocks until key's bucket has a token or ctx is done.
func (k *KeyedLimiter) Wait(ctx context.Context, key string) error {
	return k.limiter(key).Wait(ctx)
}
