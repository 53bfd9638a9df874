package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"HydroMed/storage/redis"
)

const lockPrefix = "lock"

// 只删除自己持有的锁，避免过期后误删他人的锁
var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker 基于 SETNX 的分布式锁
type RedisLocker struct {
	client goredis.Cmdable

	mu     sync.Mutex
	tokens map[string]string
}

func NewRedisLocker(client goredis.Cmdable) *RedisLocker {
	return &RedisLocker{client: client, tokens: make(map[string]string)}
}

// TryLock 获取锁，已被占用时返回 false
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, redis.Key(lockPrefix, key), token, ttl).Result()
	if err != nil || !ok {
		return false, err
	}

	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()
	return true, nil
}

func (l *RedisLocker) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	token, ok := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()

	if !ok {
		return nil
	}
	return unlockScript.Run(ctx, l.client, []string{redis.Key(lockPrefix, key)}, token).Err()
}
