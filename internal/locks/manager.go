package locks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockTimeout occurs when lock acquisition times out
	ErrLockTimeout = errors.New("timeout acquiring lock")
	// ErrLockNotHeld occurs when trying to release a lock not held by this instance
	ErrLockNotHeld = errors.New("lock not held by this instance")
	// ErrLockAlreadyHeld occurs when lock is already held by another holder
	ErrLockAlreadyHeld = errors.New("lock already held")
)

const (
	// DefaultLockTTL is the default time-to-live for locks
	DefaultLockTTL = 30 * time.Second
	// DefaultAcquireTimeout is the default timeout for acquiring locks
	DefaultAcquireTimeout = 5 * time.Second
	// DefaultRetryAttempts is the default number of retry attempts
	DefaultRetryAttempts = 3
)

// Manager hands out Redis-backed locks. The tournament orchestrator uses one
// per tournament to guard round advancement against re-entrant game-ended
// events.
type Manager struct {
	redis      *redis.Client
	instanceID string
}

// Lock represents an acquired lock.
type Lock struct {
	key     string
	value   string
	manager *Manager
}

// NewManager creates a lock manager.
func NewManager(redisClient *redis.Client) *Manager {
	return &Manager{
		redis:      redisClient,
		instanceID: uuid.New().String(),
	}
}

// Acquire attempts to take the named lock, retrying with backoff until the
// acquire timeout elapses.
func (m *Manager) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	if ttl == 0 {
		ttl = DefaultLockTTL
	}

	acquireCtx, cancel := context.WithTimeout(ctx, DefaultAcquireTimeout)
	defer cancel()

	lockValue := fmt.Sprintf("%s:%s", m.instanceID, uuid.New().String())
	lockKey := fmt.Sprintf("lock:%s", key)

	var lastErr error
	for attempt := 0; attempt < DefaultRetryAttempts; attempt++ {
		select {
		case <-acquireCtx.Done():
			return nil, ErrLockTimeout
		default:
		}

		acquired, err := m.redis.SetNX(acquireCtx, lockKey, lockValue, ttl).Result()
		if err != nil {
			lastErr = fmt.Errorf("redis error: %w", err)
			log.Printf("[LOCK] Redis error on attempt %d/%d for %s: %v", attempt+1, DefaultRetryAttempts, lockKey, err)
			time.Sleep(backoff(attempt))
			continue
		}

		if acquired {
			return &Lock{key: lockKey, value: lockValue, manager: m}, nil
		}

		lastErr = ErrLockAlreadyHeld
		select {
		case <-acquireCtx.Done():
			return nil, ErrLockTimeout
		case <-time.After(backoff(attempt)):
		}
	}

	if lastErr == nil {
		lastErr = ErrLockTimeout
	}
	return nil, lastErr
}

// Release releases the lock if it is still held by this instance. A Lua
// script guards against deleting a lock re-acquired by someone else after
// our TTL expired.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return ErrLockNotHeld
	}

	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	result, err := script.Run(ctx, l.manager.redis, []string{l.key}, l.value).Result()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if result == int64(0) {
		return ErrLockNotHeld
	}
	return nil
}

// backoff is exponential: 500ms, 1s, 2s (capped).
func backoff(attempt int) time.Duration {
	d := time.Duration(500*(1<<attempt)) * time.Millisecond
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}
