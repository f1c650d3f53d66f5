package middleware

import (
	"testing"
	"time"
)

func newTestLimiter(rps float64, burst int) *RateLimiter {
	return NewRateLimiter(RateLimiterConfig{
		RequestsPerSecond: rps,
		BurstSize:         burst,
		CleanupInterval:   time.Minute,
	})
}

func TestAllowWithinBurst(t *testing.T) {
	rl := newTestLimiter(10, 5)
	defer rl.Stop()

	for i := 0; i < 5; i++ {
		if !rl.Allow(1) {
			t.Fatalf("message %d denied inside burst", i)
		}
	}
}

func TestDenyBeyondBurst(t *testing.T) {
	rl := newTestLimiter(1, 3)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		rl.Allow(1)
	}
	if rl.Allow(1) {
		t.Fatal("message allowed beyond burst")
	}
}

func TestUsersAreIndependent(t *testing.T) {
	rl := newTestLimiter(1, 1)
	defer rl.Stop()

	rl.Allow(1)
	if rl.Allow(1) {
		t.Fatal("user 1 allowed beyond burst")
	}
	if !rl.Allow(2) {
		t.Fatal("user 2 throttled by user 1")
	}
}

func TestForgetResetsState(t *testing.T) {
	rl := newTestLimiter(1, 1)
	defer rl.Stop()

	rl.Allow(1)
	if rl.Allow(1) {
		t.Fatal("allowed beyond burst")
	}

	rl.Forget(1)
	if !rl.Allow(1) {
		t.Fatal("fresh limiter denied after Forget")
	}
}
