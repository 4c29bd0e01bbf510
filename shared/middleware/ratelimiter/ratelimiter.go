package ratelimiter

import (
	"sync"
	"time"
)

// RateLimiter implements a token bucket rate limiter
type RateLimiter struct {
	tokens     float64
	capacity   float64
	rate       float64
	lastRefill time.Time
	mu         sync.Mutex
	timer      *time.Timer
	key        string
	parent     *UserRateLimiter
}

// UserRateLimiter keeps one bucket per key (email, IP, session).
// Buckets idle for expirationTime are dropped.
type UserRateLimiter struct {
	limiters       map[string]*RateLimiter
	mu             sync.RWMutex
	rate           float64
	capacity       float64
	expirationTime time.Duration
	now            func() time.Time
}

func New(rate float64, capacity float64, expirationTime time.Duration) *UserRateLimiter {
	return &UserRateLimiter{
		limiters:       make(map[string]*RateLimiter),
		rate:           rate,
		capacity:       capacity,
		expirationTime: expirationTime,
		now:            time.Now,
	}
}

func Rps10() *UserRateLimiter      { return New(10, 10, time.Hour) }
func Rps100() *UserRateLimiter     { return New(100, 100, time.Hour) }
func Rps1000() *UserRateLimiter    { return New(1000, 1000, time.Hour) }
func OnceInSecond() *UserRateLimiter { return New(1, 1, time.Hour) }

func (url *UserRateLimiter) cleanup(key string) {
	url.mu.Lock()
	delete(url.limiters, key)
	url.mu.Unlock()
}

func (rl *RateLimiter) resetTimer() {
	if rl.timer != nil {
		rl.timer.Stop()
	}
	rl.timer = time.AfterFunc(rl.parent.expirationTime, func() {
		rl.parent.cleanup(rl.key)
	})
}

func (url *UserRateLimiter) getLimiter(key string) *RateLimiter {
	url.mu.RLock()
	limiter, exists := url.limiters[key]
	url.mu.RUnlock()

	if exists {
		limiter.mu.Lock()
		limiter.resetTimer()
		limiter.mu.Unlock()
		return limiter
	}

	url.mu.Lock()
	defer url.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists = url.limiters[key]; exists {
		return limiter
	}

	limiter = &RateLimiter{
		tokens:     url.capacity,
		capacity:   url.capacity,
		rate:       url.rate,
		lastRefill: url.now(),
		key:        key,
		parent:     url,
	}
	url.limiters[key] = limiter
	limiter.resetTimer()

	return limiter
}

func (rl *RateLimiter) allow(now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.tokens = min(rl.capacity, rl.tokens+elapsed*rl.rate)
	rl.lastRefill = now

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// Allow reports whether one more event for key fits in its bucket.
func (url *UserRateLimiter) Allow(key string) bool {
	return url.getLimiter(key).allow(url.now())
}

// Forget drops the bucket for key, e.g. when a realtime session ends.
func (url *UserRateLimiter) Forget(key string) {
	url.mu.Lock()
	if limiter, ok := url.limiters[key]; ok && limiter.timer != nil {
		limiter.timer.Stop()
	}
	delete(url.limiters, key)
	url.mu.Unlock()
}

// Stop cleans up all timers
func (url *UserRateLimiter) Stop() {
	url.mu.Lock()
	defer url.mu.Unlock()

	for _, limiter := range url.limiters {
		if limiter.timer != nil {
			limiter.timer.Stop()
		}
	}
}
