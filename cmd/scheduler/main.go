package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"HydroMed/config"
	"HydroMed/internal/cache"
	"HydroMed/internal/queue"
	"HydroMed/internal/repository"
	"HydroMed/internal/schedule"
	"HydroMed/internal/service"
	"HydroMed/pkg/logger"
	"HydroMed/pkg/otel"
	"HydroMed/pkg/snowflake"
	"HydroMed/storage"
	"HydroMed/storage/database"
	"HydroMed/storage/redis"
)

func main() {
	logger.Init()
	defer logger.Sync()

	if err := config.Validate(); err != nil {
		logger.Logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Logger.Info("Scheduler received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if config.Cfg.TracingEnabled {
		shutdown, _, err := otel.Setup(ctx, otel.Config{
			ServiceName:  config.Cfg.ServiceName + "-scheduler",
			Environment:  config.Cfg.Environment,
			OTLPEndpoint: config.Cfg.TracingEndpoint,
			SampleRatio:  config.Cfg.TracingSampler,
		})
		if err != nil {
			logger.Logger.Fatal("Failed to initialize OpenTelemetry for scheduler", zap.Error(err))
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage for scheduler", zap.Error(err))
	}
	defer storage.Close()

	// 考虑与 worker 和 server 作区分
	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake for scheduler", zap.Error(err))
	}

	notifications := service.NewNotificationService(
		repository.NewPostgresNotificationRepository(database.DB()),
		queue.NewProducer(),
		service.NotificationConfig{
			DefaultInterval:      time.Duration(config.Cfg.HydrationDefaultIntervalMinutes) * time.Minute,
			MissedThreshold:      time.Duration(config.Cfg.MissedThresholdMinutes) * time.Minute,
			SnoozeAllowCompleted: config.Cfg.SnoozeAllowCompleted,
		},
	)
	sweeper := schedule.NewSweepScheduler(notifications, cache.NewRedisLocker(redis.Client()), logger.Logger, 2*time.Minute)

	logger.Logger.Info("Scheduler service starting",
		zap.String("service", config.Cfg.ServiceName+"-scheduler"),
		zap.String("environment", config.Cfg.Environment),
	)

	interval := time.Duration(config.Cfg.SweepIntervalMinutes) * time.Minute
	// 在 development 环境下，为了方便本地调试，每 1 分钟扫描一次
	if config.Cfg.Environment == "development" || interval <= 0 {
		interval = time.Minute
		logger.Logger.Info("Missed sweep running with 1m interval")
	}

	go sweeper.Run(ctx, interval, 2*time.Minute)

	<-ctx.Done()

	logger.Logger.Info("Scheduler service shutting down gracefully")
}
