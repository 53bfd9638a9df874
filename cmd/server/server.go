package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"go.uber.org/zap"

	appconfig "HydroMed/config"
	"HydroMed/internal/cache"
	"HydroMed/internal/handler"
	"HydroMed/internal/middleware"
	"HydroMed/internal/queue"
	"HydroMed/internal/repository"
	"HydroMed/internal/router"
	"HydroMed/internal/service"
	"HydroMed/pkg/logger"
	"HydroMed/pkg/otel"
	"HydroMed/pkg/snowflake"
	"HydroMed/pkg/token"
	"HydroMed/storage"
	"HydroMed/storage/database"
	"HydroMed/storage/redis"
)

func main() {
	// 日志部分
	logger.Init()
	defer logger.Sync()

	cfg := &appconfig.Cfg
	if err := appconfig.Validate(); err != nil {
		logger.Logger.Fatal("Invalid configuration", zap.Error(err))
	}

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

	var serverOpts []config.Option
	var tracing app.HandlerFunc

	enableMetrics := false
	if cfg.TracingEnabled {
		shutdown, meter, err := otel.Setup(ctx, otel.Config{
			ServiceName:  cfg.ServiceName,
			Environment:  cfg.Environment,
			OTLPEndpoint: cfg.TracingEndpoint,
			SampleRatio:  cfg.TracingSampler,
		})
		if err != nil {
			logger.Logger.Fatal("Failed to initialize OpenTelemetry", zap.Error(err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Logger.Warn("Failed to shutdown OpenTelemetry", zap.Error(err))
			}
		}()

		if err := middleware.InitMetrics(meter); err != nil {
			logger.Logger.Fatal("Failed to initialize HTTP metrics", zap.Error(err))
		}
		enableMetrics = true

		var tracer config.Option
		tracer, tracing = middleware.NewServerTracerConfig()
		serverOpts = append(serverOpts, tracer)
	}

	// 初始化存储层，记得关闭外部连接
	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(cfg.SnowflakeMachineID, cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	if err := token.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize token package", zap.Error(err))
	} // token 在中间件前初始化，middleware 依赖 token

	// 初始化中间件
	if err := middleware.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize middlewares", zap.Error(err))
	}

	db := database.DB()
	rdb := redis.Client()

	notificationRepo := repository.NewPostgresNotificationRepository(db)
	medicationRepo := repository.NewPostgresMedicationRepository(db)
	hydrationRepo := repository.NewPostgresHydrationRepository(db)

	producer := queue.NewProducer()
	locker := cache.NewRedisLocker(rdb)
	reports := cache.NewReportCache(rdb, time.Duration(cfg.ReportCacheMinutes)*time.Minute)

	notifications := service.NewNotificationService(notificationRepo, producer, service.NotificationConfig{
		DefaultInterval:      time.Duration(cfg.HydrationDefaultIntervalMinutes) * time.Minute,
		MissedThreshold:      time.Duration(cfg.MissedThresholdMinutes) * time.Minute,
		SnoozeAllowCompleted: cfg.SnoozeAllowCompleted,
	})
	adherence := service.NewAdherenceService(medicationRepo, locker, producer, service.AdherenceConfig{
		Window: time.Duration(cfg.AdherenceWindowMinutes) * time.Minute,
	})

	hd := handler.New(
		notifications,
		service.NewHydrationService(hydrationRepo, cfg.HydrationDefaultIntervalMinutes),
		service.NewMedicationService(medicationRepo),
		adherence,
		service.NewAnalyticsService(hydrationRepo, medicationRepo, notificationRepo, reports),
	)

	logger.Logger.Info("Server starting",
		zap.String("service", cfg.ServiceName),
		zap.String("port", cfg.ServerPort),
		zap.String("environment", cfg.Environment),
	)

	addr := net.JoinHostPort(cfg.ServerHost, cfg.ServerPort)
	serverOpts = append(serverOpts, server.WithHostPorts(addr))

	h := server.Default(serverOpts...)

	routerOpts := router.Options{
		Recover: middleware.RecoverConfig{
			IsProduction:     cfg.Environment == "production",
			EnableStackTrace: true,
			RecordInSpan:     cfg.TracingEnabled,
		},
		Tracing:           tracing,
		AllowOrigins:      cfg.GetCORSOrigins(),
		RequestsPerMinute: cfg.RateLimitPerMinute,
		WritesPerMinute:   cfg.RateLimitWrites,
		EnableHTTPMetrics: enableMetrics,
	}
	if cfg.RateLimitEnabled {
		routerOpts.RateLimitClient = rdb
	}
	router.Register(h, hd, routerOpts)

	// 优雅关闭：在单独的 goroutine 中监听关闭信号并调用 Shutdown
	go func() {
		<-ctx.Done()
		logger.Logger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}()

	logger.Logger.Info("HTTP server listening", zap.String("addr", addr))

	h.Spin()

	logger.Logger.Info("Server shutting down gracefully")
}
