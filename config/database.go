package config

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDatabase opens the database named by cfg.DatabaseURI and migrates the given models.
// The URI scheme picks the driver: sqlite://, mysql://, postgres:// (or postgresql://).
// A URI without a scheme is handed to the MySQL driver as a raw DSN.
func InitDatabase(cfg *AppConfig, log *zap.Logger, modelDefs ...interface{}) (*gorm.DB, error) {
	dialector, err := openDialector(cfg.DatabaseURI)
	if err != nil {
		return nil, err
	}

	gormCfg := &gorm.Config{
		Logger:                                   NewGormLogger(log, cfg.LogLevel, cfg.DBSlowQuery),
		DisableForeignKeyConstraintWhenMigrating: true,
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if dialector.Name() == "sqlite" {
		// a single connection keeps the shared in-memory database alive and serializes writers
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
		sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if len(modelDefs) > 0 {
		if err := db.AutoMigrate(modelDefs...); err != nil {
			return nil, fmt.Errorf("auto migration failed: %w", err)
		}
	}
	return db, nil
}

func openDialector(uri string) (gorm.Dialector, error) {
	switch {
	case uri == "":
		return nil, fmt.Errorf("database uri is empty")
	case strings.HasPrefix(uri, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(uri, "sqlite://")), nil
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		return postgres.Open(uri), nil
	case strings.HasPrefix(uri, "mysql://"):
		return mysql.Open(strings.TrimPrefix(uri, "mysql://")), nil
	default:
		return mysql.Open(uri), nil
	}
}

// NewGormLogger routes GORM output through zap. Queries slower than slow are reported as warnings.
func NewGormLogger(log *zap.Logger, level string, slow time.Duration) logger.Interface {
	if log == nil {
		log = zap.NewNop()
	}
	return logger.New(
		zapWriter{sugar: log.Named("gorm").Sugar()},
		logger.Config{
			SlowThreshold:             slow,
			LogLevel:                  toGormLogLevel(level),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

type zapWriter struct {
	sugar *zap.SugaredLogger
}

func (w zapWriter) Printf(format string, args ...interface{}) {
	w.sugar.Warnf(format, args...)
}

// toGormLogLevel maps application LogLevel to GORM's logger level.
func toGormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		// GORM 'Info' shows SQL; use with caution
		return logger.Info
	case "info", "", "warn":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}
