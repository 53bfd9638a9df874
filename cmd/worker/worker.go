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
	"HydroMed/internal/service"
	"HydroMed/pkg/logger"
	"HydroMed/pkg/otel"
	"HydroMed/storage"
	"HydroMed/storage/database"
	"HydroMed/storage/redis"
)

func main() {
	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if config.Cfg.TracingEnabled {
		shutdown, _, err := otel.Setup(ctx, otel.Config{
			ServiceName:  config.Cfg.ServiceName + "-worker",
			Environment:  config.Cfg.Environment,
			OTLPEndpoint: config.Cfg.TracingEndpoint,
			SampleRatio:  config.Cfg.TracingSampler,
		})
		if err != nil {
			logger.Logger.Fatal("Failed to initialize OpenTelemetry for worker", zap.Error(err))
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	db := database.DB()
	rdb := redis.Client()

	// 消费者只负责让周报缓存失效，下次读取时重新计算
	analytics := service.NewAnalyticsService(
		repository.NewPostgresHydrationRepository(db),
		repository.NewPostgresMedicationRepository(db),
		repository.NewPostgresNotificationRepository(db),
		cache.NewReportCache(rdb, time.Duration(config.Cfg.ReportCacheMinutes)*time.Minute),
	)
	consumer := queue.NewConsumer(analytics, cache.NewMessageMarker(rdb))

	logger.Logger.Info("Worker service starting",
		zap.String("service", config.Cfg.ServiceName+"-worker"),
		zap.String("environment", config.Cfg.Environment),
	)

	//启动所有的消费者部分
	queue.StartAllConsumers(ctx, consumer)

	logger.Logger.Info("Worker service shutting down gracefully")
}
