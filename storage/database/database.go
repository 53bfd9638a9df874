package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"

	"HydroMed/config"
	dbotel "HydroMed/pkg/database"
	"HydroMed/pkg/logger"
)

var (
	db     *gorm.DB
	dbOnce sync.Once
	dbErr  error
)

// Init 打开主库，注册只读副本与 OTel 插件，并执行迁移
func Init() error {
	dbOnce.Do(func() {
		cfg := config.Cfg
		gormCfg := &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
			PrepareStmt:                              true,
			SkipDefaultTransaction:                   true,
		}

		var gormDB *gorm.DB
		gormDB, dbErr = gorm.Open(postgres.Open(cfg.GetDSN()), gormCfg)
		if dbErr != nil {
			logger.Logger.Error("Failed to open database", zap.String("host", cfg.PostgreSQLHost), zap.Error(dbErr))
			return
		}

		if replicas := cfg.GetReplicaDSNs(); len(replicas) > 0 {
			dialectors := make([]gorm.Dialector, 0, len(replicas))
			for _, dsn := range replicas {
				dialectors = append(dialectors, postgres.Open(dsn))
			}
			resolver := dbresolver.Register(dbresolver.Config{
				Replicas: dialectors,
				Policy:   dbresolver.RandomPolicy{},
			}).
				SetMaxIdleConns(cfg.PostgreSQLMaxIdle).
				SetMaxOpenConns(cfg.PostgreSQLMaxOpen).
				SetConnMaxIdleTime(10 * time.Minute).
				SetConnMaxLifetime(2 * time.Hour)
			if dbErr = gormDB.Use(resolver); dbErr != nil {
				logger.Logger.Error("Failed to register read replicas", zap.Error(dbErr))
				return
			}
			logger.Logger.Info("Read replicas registered", zap.Int("count", len(dialectors)))
		}

		if cfg.TracingEnabled {
			if err := dbotel.WithDefaultOTELPlugin(gormDB, cfg.ServiceName); err != nil {
				logger.Logger.Warn("Failed to register gorm otel plugin", zap.Error(err))
			}
		}

		sqlDB, err := gormDB.DB()
		if err != nil {
			dbErr = err
			logger.Logger.Error("Failed to get sql.DB from gorm", zap.Error(err))
			return
		}

		configureConnectionPool(sqlDB)

		if err := sqlDB.Ping(); err != nil {
			dbErr = err
			logger.Logger.Error("Failed to ping database", zap.Error(err))
			return
		}

		db = gormDB
		if err := Migrate(); err != nil {
			dbErr = fmt.Errorf("failed to run database migration: %w", err)
			return
		}
		logger.Logger.Info("Database initialized successfully")
	})

	return dbErr
}

func DB() *gorm.DB {
	return db
}

func Close(ctx context.Context) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- sqlDB.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func configureConnectionPool(sqlDB *sql.DB) {
	cfg := config.Cfg

	sqlDB.SetMaxIdleConns(cfg.PostgreSQLMaxIdle)
	sqlDB.SetMaxOpenConns(cfg.PostgreSQLMaxOpen)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	sqlDB.SetConnMaxLifetime(2 * time.Hour)
}
