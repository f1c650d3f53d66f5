package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	RequestsPerSecond float64       // Rate limit: messages per second
	BurstSize         int           // Maximum burst size
	CleanupInterval   time.Duration // How often to cleanup old limiters
}

// DefaultRateLimiterConfig is sized for game input: paddle direction changes
// arrive on key transitions, not per frame, so 30 msg/s with a 60 burst is
// generous for a human and still shuts down floods.
var DefaultRateLimiterConfig = RateLimiterConfig{
	RequestsPerSecond: 30.0,
	BurstSize:         60,
	CleanupInterval:   5 * time.Minute,
}

// clientLimiter tracks a rate limiter and last seen time for cleanup
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages per-user limiters for inbound websocket messages.
type RateLimiter struct {
	limiters    map[int64]*clientLimiter
	mu          sync.Mutex
	config      RateLimiterConfig
	stopCleanup chan struct{}
}

// NewRateLimiter creates a new rate limiter with automatic cleanup
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		limiters:    make(map[int64]*clientLimiter),
		config:      config,
		stopCleanup: make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow checks if a message from the given user should be processed.
func (rl *RateLimiter) Allow(userID int64) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[userID]
	if !exists {
		limiter = &clientLimiter{
			limiter:  rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize),
			lastSeen: time.Now(),
		}
		rl.limiters[userID] = limiter
	} else {
		limiter.lastSeen = time.Now()
	}

	return limiter.limiter.Allow()
}

// Forget drops the limiter state for a user (called when they disconnect).
func (rl *RateLimiter) Forget(userID int64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.limiters, userID)
}

// Stop terminates the background cleanup loop.
func (rl *RateLimiter) Stop() {
	close(rl.stopCleanup)
}

// cleanupLoop periodically removes limiters that have not been seen recently.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.config.CleanupInterval)
	for userID, limiter := range rl.limiters {
		if limiter.lastSeen.Before(cutoff) {
			delete(rl.limiters, userID)
		}
	}
}
