package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 只有持有者才能释放锁
const unlockScript = `
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`

// RedisLocker 基于 SET NX 的分布式锁
type RedisLocker struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisLocker(cli redis.UniversalClient, prefix string) *RedisLocker {
	return &RedisLocker{
		redis:  cli,
		prefix: prefix,
	}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	key = l.prefix + ":lock:" + key
	token := uuid.NewString()

	ok, err := l.redis.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := l.redis.Eval(ctx, unlockScript, []string{key}, token).Err(); err != nil {
			slog.Warn("failed to release lock", slog.String("key", key), slog.String("error", err.Error()))
		}
	}, true, nil
}
