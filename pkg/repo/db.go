// Package repo stores projects for the persistence service. Projects are
// kept as one JSON document per row, owned by a user id, with public share
// tokens in a side table and fronted by a ShareCache.
package repo

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/chazu/stepwise/pkg/config"
	"github.com/chazu/stepwise/pkg/logger"
)

var ErrNotFound = errors.New("repo: not found")

// Open connects to the configured database and migrates the schema.
func Open(cfg config.DatabaseConfig, logg *logger.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("repo: unknown database driver %q", cfg.Driver)
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("repo: connect %s: %w", cfg.Driver, err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	if logg != nil {
		logg.Info("database ready", "driver", cfg.Driver)
	}
	return db, nil
}

// Migrate creates or updates the project tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&ProjectRecord{}, &ShareRecord{}); err != nil {
		return fmt.Errorf("repo: migrate: %w", err)
	}
	return nil
}
