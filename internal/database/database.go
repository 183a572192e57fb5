// Package database opens the MySQL connection shared by the server and
// the CLI.
package database

import (
	"fmt"
	"log/slog"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/modules/appointments"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/modules/payments"
)

// NormalizeDSN forces parseTime and UTC so datetime columns scan into
// time.Time consistently.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysqldrv.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("database: parse dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

func Open(dsn string, log *slog.Logger) (*gorm.DB, error) {
	dsn, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.New(slog.NewLogLogger(log.Handler(), slog.LevelWarn), logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Migrate creates or updates every table this service owns.
func Migrate(db *gorm.DB) error {
	if err := appointments.AutoMigrate(db); err != nil {
		return fmt.Errorf("database: migrate appointments: %w", err)
	}
	if err := payments.AutoMigrate(db); err != nil {
		return fmt.Errorf("database: migrate payments: %w", err)
	}
	return nil
}
