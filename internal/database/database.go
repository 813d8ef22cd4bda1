package database

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pairStudio/internal/config"
)

// InitDatabase 连接 PostgreSQL；GORM 日志走 slog，按配置迁移导出表与子配对台账。
func InitDatabase(cfg config.DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormLogger(cfg, log),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap db: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(max(cfg.MaxOpenConns/5, 2))
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}
	return db, nil
}

// gormLogger 导出查询 404 属于正常路径，不记录 record not found。
func gormLogger(cfg config.DatabaseConfig, log *slog.Logger) logger.Interface {
	level, slogLevel := logger.Warn, slog.LevelWarn
	if cfg.Debug {
		level, slogLevel = logger.Info, slog.LevelInfo
	}
	return logger.New(
		slog.NewLogLogger(log.With("component", "gorm").Handler(), slogLevel),
		logger.Config{
			SlowThreshold:             cfg.SlowQuery,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		},
	)
}
