package ratelimiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucketRateLimiter keeps one rate.Limiter per client. Buckets idle for
// longer than the idle timeout are dropped.
type TokenBucketRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idle    time.Duration

	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewTokenBucketRateLimiter(perSecond float64, burst int, idle time.Duration) *TokenBucketRateLimiter {
	rl := &TokenBucketRateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idle:    idle,
		ticker:  time.NewTicker(idle),
		done:    make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

func (rl *TokenBucketRateLimiter) Allow(key string) (bool, time.Duration) {
	now := time.Now()

	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (rl *TokenBucketRateLimiter) sweep() {
	for {
		select {
		case <-rl.ticker.C:
			cutoff := time.Now().Add(-rl.idle)
			rl.mu.Lock()
			for key, b := range rl.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.done:
			return
		}
	}
}

func (rl *TokenBucketRateLimiter) Close() {
	rl.once.Do(func() {
		close(rl.done)
		rl.ticker.Stop()
	})
}
