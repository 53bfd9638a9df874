package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"HydroMed/internal/agent"
	"HydroMed/internal/model"
	"HydroMed/internal/reminder"
	"HydroMed/pkg/logger"
)

func main() {
	configPath := flag.String("config", "hydromed-agent.yaml", "path to the agent config file")
	logWater := flag.Int("log-water", 0, "record a drink in ml, sync it and exit")
	source := flag.String("source", "manual", "source of the drink recorded with -log-water")
	complete := flag.Int64("complete", 0, "mark a notification completed, sync it and exit")
	snooze := flag.Int64("snooze", 0, "snooze a notification by -minutes, sync it and exit")
	minutes := flag.Int("minutes", 10, "snooze length used with -snooze")
	logDose := flag.Int64("log-dose", 0, "record a dose for a medication id, sync it and exit")
	doseStatus := flag.String("dose-status", "completed", "completed or skipped, used with -log-dose")
	flag.Parse()

	cfg, err := agent.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load agent config: %v", err)
	}

	logger.InitWith(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	defer logger.Sync()

	store, err := agent.OpenStore(cfg.Store.Path)
	if err != nil {
		logger.Logger.Fatal("Failed to open local store", zap.String("path", cfg.Store.Path), zap.Error(err))
	}
	defer store.Close()

	api, err := agent.NewAPIClient(cfg.Server)
	if err != nil {
		logger.Logger.Fatal("Failed to create API client", zap.Error(err))
	}

	scheduler := reminder.NewScheduler(store)
	gate := reminder.NewGate(reminder.NewThrottle(nil, nil), reminder.NewLogPresenter())
	outbox := agent.NewOutbox(store, api, cfg.Outbox)
	a := agent.New(cfg, store, scheduler, gate, api, outbox)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 单次记录模式：写本地、同步服务端后退出，失败的同步留在 outbox 里
	if *logWater > 0 {
		state, err := a.LogWater(ctx, *logWater, *source)
		if err != nil {
			logger.Logger.Fatal("Failed to log water", zap.Error(err))
		}
		a.Wait()
		logger.Logger.Info("Water logged",
			zap.Int("amount_ml", *logWater),
			zap.Int("entries", len(state.Entries)),
		)
		return
	}

	if *complete > 0 || *snooze > 0 || *logDose > 0 {
		var err error
		switch {
		case *complete > 0:
			err = a.Complete(ctx, *complete)
		case *snooze > 0:
			err = a.Snooze(ctx, *snooze, *minutes)
		default:
			err = a.LogDose(ctx, *logDose, model.AdherenceStatus(*doseStatus))
		}
		if err != nil {
			logger.Logger.Fatal("Failed to sync action", zap.Error(err))
		}
		a.Wait()
		logger.Logger.Info("Action synced",
			zap.Int64("complete", *complete),
			zap.Int64("snooze", *snooze),
			zap.Int64("log_dose", *logDose),
		)
		return
	}

	if err := a.Start(ctx); err != nil {
		logger.Logger.Fatal("Failed to start agent", zap.Error(err))
	}

	go scheduler.Run(ctx)
	go outbox.Run(ctx, cfg.DrainInterval())

	logger.Logger.Info("Agent started",
		zap.String("server", cfg.Server.BaseURL),
		zap.String("store", cfg.Store.Path),
		zap.Int("pending_reminders", scheduler.Pending()),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGHUP)

	for {
		sig := <-sigCh
		// SIGHUP 重新拉取目标和用药计划
		if sig == syscall.SIGHUP {
			if err := a.Refresh(ctx); err != nil {
				logger.Logger.Warn("Refresh failed", zap.Error(err))
				continue
			}
			logger.Logger.Info("Refreshed from server", zap.Int("pending_reminders", scheduler.Pending()))
			continue
		}
		// SIGUSR1 表示设备从休眠中唤醒，补发错过的提醒
		if sig == syscall.SIGUSR1 {
			n, err := a.Resume(ctx)
			if err != nil {
				logger.Logger.Warn("Resume failed", zap.Error(err))
				continue
			}
			logger.Logger.Info("Resumed after sleep", zap.Int("reconciled", n))
			continue
		}

		logger.Logger.Info("Agent received shutdown signal", zap.String("signal", sig.String()))
		cancel()
		a.Wait()
		return
	}
}
