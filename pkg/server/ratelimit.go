package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyedRateLimiter gives every client key its own token bucket. Buckets
// idle for longer than idleTTL are dropped.
type KeyedRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyedLimiter
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedRateLimiter allows rps requests per second per key with the
// given burst.
func NewKeyedRateLimiter(rps float64, burst int) *KeyedRateLimiter {
	krl := &KeyedRateLimiter{
		limiters: make(map[string]*keyedLimiter),
		limit:    rate.Limit(rps),
		burst:    burst,
		idleTTL:  10 * time.Minute,
		done:     make(chan struct{}),
	}
	go krl.cleanup(time.Minute)
	return krl
}

// Allow reports whether a request for key may proceed now.
func (krl *KeyedRateLimiter) Allow(key string) bool {
	krl.mu.Lock()
	kl, ok := krl.limiters[key]
	if !ok {
		kl = &keyedLimiter{limiter: rate.NewLimiter(krl.limit, krl.burst)}
		krl.limiters[key] = kl
	}
	kl.lastSeen = time.Now()
	krl.mu.Unlock()
	return kl.limiter.Allow()
}

// Len returns the number of tracked keys.
func (krl *KeyedRateLimiter) Len() int {
	krl.mu.Lock()
	defer krl.mu.Unlock()
	return len(krl.limiters)
}

// Stop shuts down the cleanup goroutine.
func (krl *KeyedRateLimiter) Stop() {
	krl.stopOnce.Do(func() { close(krl.done) })
}

func (krl *KeyedRateLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-krl.done:
			return
		case now := <-ticker.C:
			krl.evict(now)
		}
	}
}

func (krl *KeyedRateLimiter) evict(now time.Time) {
	krl.mu.Lock()
	defer krl.mu.Unlock()
	for key, kl := range krl.limiters {
		if now.Sub(kl.lastSeen) > krl.idleTTL {
			delete(krl.limiters, key)
		}
	}
}
