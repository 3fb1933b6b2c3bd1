package security

import (
	"testing"
	"time"
)

func TestRateLimiter(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		rl := NewRateLimiter(RateLimitConfig{Enabled: false})
		for i := 0; i < 100; i++ {
			if !rl.Allow("10.0.0.1") {
				t.Fatal("Disabled limiter must always allow")
			}
		}
	})

	t.Run("BurstExhaustion", func(t *testing.T) {
		rl := NewRateLimiter(RateLimitConfig{Enabled: true, RequestsPerMin: 60, Burst: 3})
		allowed := 0
		for i := 0; i < 10; i++ {
			if rl.Allow("10.0.0.2") {
				allowed++
			}
		}
		if allowed != 3 {
			t.Errorf("Allowed %d requests, want burst of 3", allowed)
		}
	})

	t.Run("PerClientIsolation", func(t *testing.T) {
		rl := NewRateLimiter(RateLimitConfig{Enabled: true, RequestsPerMin: 60, Burst: 1})
		if !rl.Allow("10.0.0.3") {
			t.Fatal("First request should be allowed")
		}
		if rl.Allow("10.0.0.3") {
			t.Error("Second request from the same client should be limited")
		}
		if !rl.Allow("10.0.0.4") {
			t.Error("A different client must not share the bucket")
		}
	})

	t.Run("RemoveStale", func(t *testing.T) {
		rl := NewRateLimiter(RateLimitConfig{Enabled: true, RequestsPerMin: 60, Burst: 1})
		rl.Allow("10.0.0.5")

		rl.mu.Lock()
		rl.visitors["10.0.0.5"].lastSeen = time.Now().Add(-2 * time.Hour)
		rl.mu.Unlock()

		rl.RemoveStale(time.Hour)

		rl.mu.Lock()
		_, exists := rl.visitors["10.0.0.5"]
		rl.mu.Unlock()
		if exists {
			t.Error("Stale visitor should have been removed")
		}
	})
}
