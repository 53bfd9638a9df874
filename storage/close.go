package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"HydroMed/pkg/logger"
	"HydroMed/storage/database"
	"HydroMed/storage/mq"
	"HydroMed/storage/redis"
)

// Close 按 MQ -> Redis -> Database 的顺序关闭，先停止收发事件，最后释放数据库连接
func Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger.Logger.Info("Closing storage connections...")

	closers := []struct {
		name  string
		close func(context.Context) error
	}{
		{"rabbitmq", mq.Close},
		{"redis", redis.Close},
		{"database", database.Close},
	}

	for _, c := range closers {
		if err := c.close(ctx); err != nil {
			logger.Logger.Error("Failed to close storage", zap.String("component", c.name), zap.Error(err))
			continue
		}
		logger.Logger.Info("Storage closed", zap.String("component", c.name))
	}
}
