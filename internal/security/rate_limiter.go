// Package security provides per-client rate limiting for the generation
// endpoints.
package security

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig contains rate limiter configuration.
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	Burst          int  `yaml:"burst" mapstructure:"burst"`
}

// RateLimiter tracks one token-bucket limiter per client IP.
type RateLimiter struct {
	cfg      RateLimitConfig
	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new per-client rate limiter.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		cfg:      cfg,
		visitors: make(map[string]*visitor),
	}
}

// Allow reports whether a request from the given client IP may proceed.
func (r *RateLimiter) Allow(clientIP string) bool {
	if !r.cfg.Enabled {
		return true
	}

	r.mu.Lock()
	v, ok := r.visitors[clientIP]
	if !ok {
		v = &visitor{
			limiter: rate.NewLimiter(rate.Limit(float64(r.cfg.RequestsPerMin)/60.0), r.cfg.Burst),
		}
		r.visitors[clientIP] = v
	}
	v.lastSeen = time.Now()
	r.mu.Unlock()

	return v.limiter.Allow()
}

// RemoveStale drops visitors idle longer than maxIdle.
func (r *RateLimiter) RemoveStale(maxIdle time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	for ip, v := range r.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(r.visitors, ip)
		}
	}
}

// StartCleanupRoutine periodically removes stale visitors until stop is
// closed.
func (r *RateLimiter) StartCleanupRoutine(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.RemoveStale(time.Hour)
			case <-stop:
				return
			}
		}
	}()
}
