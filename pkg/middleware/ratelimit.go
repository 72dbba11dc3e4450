package middleware

import (
	"net/http"
	"sync"
	"time"
)

// RateLimitConfig defines token-bucket rate limiting per client.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
	BurstSize         int
}

// DefaultRateLimitConfig returns defaults suitable for interactive API use.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    time.Minute,
		BurstSize:         10,
	}
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// RateLimiter is an in-memory token bucket limiter keyed by client IP.
// Single-node only; a distributed deployment needs a shared store instead.
type RateLimiter struct {
	config  *RateLimitConfig
	buckets map[string]*bucket
	mu      sync.Mutex
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether the key may make a request now.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{
			tokens:     float64(rl.config.RequestsPerWindow + rl.config.BurstSize),
			lastUpdate: now,
		}
		rl.buckets[key] = b
	}

	refillRate := float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds()
	elapsed := now.Sub(b.lastUpdate).Seconds()
	b.tokens += elapsed * refillRate
	max := float64(rl.config.RequestsPerWindow + rl.config.BurstSize)
	if b.tokens > max {
		b.tokens = max
	}
	b.lastUpdate = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Handler wraps an HTTP handler with rate limiting by remote address.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientKey(r)) {
			w.Header().Set("Retry-After", "60")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	return r.RemoteAddr
}
