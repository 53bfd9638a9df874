package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"HydroMed/internal/analytics"
	"HydroMed/pkg/breaker"
	"HydroMed/pkg/logger"
	"HydroMed/pkg/metrics"
	"HydroMed/storage/redis"
)

// 过期时间随机增加至多 10%，避免同一批 key 同时失效
const ttlJitterRatio = 0.1

// ProtectedCache JSON 缓存，Redis 连续出错时熔断并直接回源
type ProtectedCache struct {
	client    goredis.Cmdable
	breaker   *breaker.CircuitBreaker
	keyPrefix string
	ttl       time.Duration
}

// NewProtectedCache 创建受保护的缓存实例
func NewProtectedCache(client goredis.Cmdable, keyPrefix string, ttl time.Duration) *ProtectedCache {
	return &ProtectedCache{
		client:    client,
		breaker:   breaker.New("cache:"+keyPrefix, 5, 30*time.Second),
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

// Set 序列化后写入
func (pc *ProtectedCache) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return pc.breaker.Call(func() error {
		return pc.client.Set(ctx, redis.Key(pc.keyPrefix, key), data, pc.jitteredTTL()).Err()
	})
}

// Get 命中时反序列化到 dest，未命中返回 false
func (pc *ProtectedCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	var data []byte
	err := pc.breaker.Call(func() error {
		var err error
		data, err = pc.client.Get(ctx, redis.Key(pc.keyPrefix, key)).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to get cache: %w", err)
	}
	if data == nil {
		return false, nil
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return true, nil
}

// Delete 删除缓存
func (pc *ProtectedCache) Delete(ctx context.Context, key string) error {
	return pc.breaker.Call(func() error {
		return pc.client.Del(ctx, redis.Key(pc.keyPrefix, key)).Err()
	})
}

func (pc *ProtectedCache) jitteredTTL() time.Duration {
	jitter := time.Duration(rand.Int63n(int64(float64(pc.ttl)*ttlJitterRatio) + 1))
	return pc.ttl + jitter
}

// ReportCache 周报缓存，按用户 ID 存储
type ReportCache struct {
	pc *ProtectedCache
}

func NewReportCache(client goredis.Cmdable, ttl time.Duration) *ReportCache {
	return &ReportCache{pc: NewProtectedCache(client, "report", ttl)}
}

func (c *ReportCache) Get(ctx context.Context, userID int64) (*analytics.ReportCard, bool) {
	var card analytics.ReportCard
	hit, err := c.pc.Get(ctx, strconv.FormatInt(userID, 10), &card)
	if err != nil {
		logger.Logger.Warn("Report cache read failed", zap.Int64("user_id", userID), zap.Error(err))
	}
	metrics.GetMetrics().RecordReportCache(ctx, hit)
	if !hit {
		return nil, false
	}
	return &card, true
}

func (c *ReportCache) Set(ctx context.Context, userID int64, card *analytics.ReportCard) {
	if err := c.pc.Set(ctx, strconv.FormatInt(userID, 10), card); err != nil {
		logger.Logger.Warn("Report cache write failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (c *ReportCache) Invalidate(ctx context.Context, userID int64) error {
	return c.pc.Delete(ctx, strconv.FormatInt(userID, 10))
}
