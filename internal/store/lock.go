package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when the lock could not be acquired within the wait limit.
var ErrLockTimeout = errors.New("timed out waiting for lock")

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a single-key mutual exclusion lock shared by every process
// writing the same ledger file.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// NewRedisLock creates a lock on key. ttl bounds how long a crashed holder
// can block others; wait bounds how long Lock retries.
func NewRedisLock(client *redis.Client, key string, ttl, wait time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisLock{client: client, key: key, ttl: ttl, wait: wait, retry: 50 * time.Millisecond}
}

// Lock blocks until the lock is held, the wait limit passes, or ctx ends.
func (l *RedisLock) Lock(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("redis lock %s: %w", l.key, err)
		}
		if ok {
			return func() {
				// use a fresh context so the lock is released even if ctx was cancelled
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.client, []string{l.key}, token).Err()
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("redis lock %s: %w", l.key, ErrLockTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}
