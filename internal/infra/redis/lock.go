package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLockHeld means another holder owns the key.
var ErrLockHeld = errors.New("redis: lock held")

type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

var _ Locker = (*RedisLocker)(nil)

// RedisLocker keeps scheduled jobs single-instance across replicas.
type RedisLocker struct {
	cli      RedisClient
	attempts int
	wait     time.Duration
}

func NewLocker(c RedisClient) *RedisLocker {
	return &RedisLocker{cli: c, attempts: 5, wait: 50 * time.Millisecond}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	var lastErr error
	for i := 0; i < l.attempts; i++ {
		ok, err := l.cli.SetNX(ctx, key, token, ttl)
		if err != nil {
			lastErr = err
		} else if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.wait):
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", ErrLockHeld
}

const luaUnlock = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := l.cli.Eval(ctx, luaUnlock, []string{key}, token)
	return err
}
