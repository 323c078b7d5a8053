// Package lock implements a Redis mutex used to serialize hall scheduling and
// the ticket sweep across server instances.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock is held by another owner")
	ErrLockNotOwned    = errors.New("lock is not owned by this holder")
)

// Compare-and-delete so a holder never releases a lock that expired and was
// taken by someone else.
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	end
	return 0
`)

type DistributedLock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
}

type LockManager struct {
	client *redis.Client
}

func NewLockManager(client *redis.Client) *LockManager {
	return &LockManager{client: client}
}

// AcquireLock tries once to take key for ttl.
func (m *LockManager) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*DistributedLock, error) {
	lockKey := "lock:" + key
	value := uuid.NewString()

	ok, err := m.client.SetNX(ctx, lockKey, value, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", lockKey, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &DistributedLock{client: m.client, key: lockKey, value: value, ttl: ttl}, nil
}

// AcquireLockWithRetry retries while the lock is held elsewhere, waiting
// retryDelay between attempts. Other errors are returned immediately.
func (m *LockManager) AcquireLockWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (*DistributedLock, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		l, err := m.AcquireLock(ctx, key, ttl)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, ErrLockNotAcquired) {
			return nil, err
		}
		lastErr = err
		if i == maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, lastErr
}

func (l *DistributedLock) Key() string { return l.key }

func (l *DistributedLock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Int()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockNotOwned
	}
	return nil
}

func (l *DistributedLock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.value, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockNotOwned
	}
	l.ttl = ttl
	return nil
}

const (
	defaultTTL        = 10 * time.Second
	defaultRetries    = 50
	defaultRetryDelay = 100 * time.Millisecond
)

// Lock blocks (bounded by retries and ctx) until key is held and returns the
// function that releases it.
func (m *LockManager) Lock(ctx context.Context, key string) (func(), error) {
	l, err := m.AcquireLockWithRetry(ctx, key, defaultTTL, defaultRetries, defaultRetryDelay)
	if err != nil {
		return nil, err
	}
	return l.unlocker(), nil
}

// TryLock makes a single attempt and returns ErrLockNotAcquired if key is
// taken.
func (m *LockManager) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l, err := m.AcquireLock(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return l.unlocker(), nil
}

// unlocker releases on a fresh context so a cancelled request still frees
// the key instead of waiting for the TTL.
func (l *DistributedLock) unlocker() func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Release(ctx)
	}
}
