package locking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every engine instance using the same Redis.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker builds a distributed locker. ttl bounds how long a crashed holder blocks others.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, prefix: "lifecycle:lock:", ttl: ttl, retry: 25 * time.Millisecond}
}

// Acquire takes every key in sorted order, polling until ctx is done.
func (r *RedisLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	ordered := normalize(keys)
	token := uuid.NewString()
	held := make([]string, 0, len(ordered))
	for _, key := range ordered {
		if err := r.lock(ctx, r.prefix+key, token); err != nil {
			r.unlockAll(held, token)
			return nil, err
		}
		held = append(held, r.prefix+key)
	}
	return releaseOnce(func() { r.unlockAll(held, token) }), nil
}

func (r *RedisLocker) lock(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *RedisLocker) unlockAll(keys []string, token string) {
	// release must succeed even if the caller's context is already cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := len(keys) - 1; i >= 0; i-- {
		_ = releaseScript.Run(ctx, r.client, []string{keys[i]}, token).Err()
	}
}
