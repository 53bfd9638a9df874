package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"HydroMed/pkg/errors"
	"HydroMed/pkg/logger"
	"HydroMed/pkg/response"
	"HydroMed/storage/redis"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	KeyPrefix     string
	Window        int // 时间窗口（秒）
	MaxRequests   int
	BlockDuration int // 超限后禁止访问的时间（秒），0 表示不封禁
	ByUserID      bool
	ByIP          bool
}

// GeneralRateLimitConfig 所有认证后的路由
func GeneralRateLimitConfig(perMinute int) RateLimitConfig {
	return RateLimitConfig{
		KeyPrefix:   "rate:limit",
		Window:      60,
		MaxRequests: perMinute,
		ByUserID:    true,
		ByIP:        true,
	}
}

// WriteRateLimitConfig 写接口，超限后封禁 5 分钟
func WriteRateLimitConfig(perMinute int) RateLimitConfig {
	return RateLimitConfig{
		KeyPrefix:     "rate:write",
		Window:        60,
		MaxRequests:   perMinute,
		BlockDuration: 300,
		ByUserID:      true,
	}
}

// RateLimiter 基于 ZSET 的滑动窗口限流
type RateLimiter struct {
	client goredis.Cmdable
	config RateLimitConfig
	now    func() time.Time
}

func NewRateLimiter(client goredis.Cmdable, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{client: client, config: config, now: time.Now}
}

// identifier 优先按用户，其次按 IP；都不可用时返回空
func (rl *RateLimiter) identifier(ctx context.Context, c *app.RequestContext) string {
	if rl.config.ByUserID {
		if userID, ok := GetUserID(ctx, c); ok {
			return "user:" + strconv.FormatInt(userID, 10)
		}
	}
	if rl.config.ByIP {
		return "ip:" + c.ClientIP()
	}
	return ""
}

// Allow 返回是否放行以及窗口内的请求数
func (rl *RateLimiter) Allow(ctx context.Context, id string) (bool, int, error) {
	key := redis.Key(rl.config.KeyPrefix, id)
	now := rl.now()
	windowStart := now.Add(-time.Duration(rl.config.Window) * time.Second)

	pipe := rl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	pipe.ZAdd(ctx, key, goredis.Z{
		Score:  float64(now.UnixNano()),
		Member: now.UnixNano(),
	})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, time.Duration(rl.config.Window+10)*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to execute pipeline: %w", err)
	}

	count := int(card.Val())
	return count <= rl.config.MaxRequests, count, nil
}

func (rl *RateLimiter) blockKey(id string) string {
	return redis.Key(rl.config.KeyPrefix, "block", id)
}

func (rl *RateLimiter) Block(ctx context.Context, id string) error {
	if rl.config.BlockDuration <= 0 {
		return nil
	}
	return rl.client.Set(ctx, rl.blockKey(id), "1", time.Duration(rl.config.BlockDuration)*time.Second).Err()
}

func (rl *RateLimiter) IsBlocked(ctx context.Context, id string) (bool, error) {
	if rl.config.BlockDuration <= 0 {
		return false, nil
	}
	n, err := rl.client.Exists(ctx, rl.blockKey(id)).Result()
	return n > 0, err
}

// RateLimitMiddleware Redis 故障时放行，不影响主流程
func RateLimitMiddleware(client goredis.Cmdable, config RateLimitConfig) app.HandlerFunc {
	limiter := NewRateLimiter(client, config)

	return func(ctx context.Context, c *app.RequestContext) {
		id := limiter.identifier(ctx, c)
		if id == "" {
			c.Next(ctx)
			return
		}

		blocked, err := limiter.IsBlocked(ctx, id)
		if err != nil {
			logger.Logger.Warn("Failed to check block status", zap.String("id", id), zap.Error(err))
		} else if blocked {
			response.Error(ctx, c, errors.TooManyRequests)
			c.Abort()
			return
		}

		allowed, count, err := limiter.Allow(ctx, id)
		if err != nil {
			logger.Logger.Warn("Failed to check rate limit", zap.String("id", id), zap.Error(err))
			c.Next(ctx)
			return
		}

		remaining := max(config.MaxRequests-count, 0)
		c.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
		c.Response.Header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			if err := limiter.Block(ctx, id); err != nil {
				logger.Logger.Error("Failed to block client", zap.String("id", id), zap.Error(err))
			}
			logger.Logger.Info("Rate limit exceeded", zap.String("id", id), zap.Int("count", count))
			response.Error(ctx, c, errors.TooManyRequests)
			c.Abort()
			return
		}

		c.Next(ctx)
	}
}
