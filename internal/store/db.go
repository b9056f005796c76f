// Package store reads the append-only relational event log. The core never
// writes to this store; every query is a single independent read.
package store

import (
	"context"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/fystack/explorer-api/pkg/common/config"
	"github.com/fystack/explorer-api/pkg/common/logger"
)

func NewConnection(cfg config.DatabaseConfig, environment config.Env) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	logger.Info("Database connection established", "database", cfg.Name)

	if environment != config.ProdEnv {
		// only print statement logs outside production
		db = db.Debug()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// withTimeout bounds one repo query. A hung connection (a dead tunnel looks
// exactly like one) must fail the request instead of holding it open.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
