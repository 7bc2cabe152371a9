package config

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	Connection *gorm.DB
}

// NewCacheDatabase opens the store backing the vulnerability cache. The
// default is a single sqlite file at OSV_CACHE_PATH; deployments can point
// CACHE_DB_DRIVER/CACHE_DB_DSN at postgres instead.
func NewCacheDatabase(cfg *Configurations) (*Database, error) {
	var dialector gorm.Dialector
	switch cfg.CACHE_DB_DRIVER {
	case "", "sqlite":
		dialector = sqlite.Open(cfg.OSV_CACHE_PATH)
	case "postgres":
		if cfg.CACHE_DB_DSN == "" {
			return nil, fmt.Errorf("CACHE_DB_DSN is required with the postgres driver")
		}
		dialector = postgres.Open(cfg.CACHE_DB_DSN)
	default:
		return nil, fmt.Errorf("unsupported cache driver %q", cfg.CACHE_DB_DRIVER)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	// The cache sees many readers and occasional writers from one process.
	sqlDB.SetMaxOpenConns(8)
	sqlDB.SetMaxIdleConns(4)
	return &Database{Connection: db}, nil
}

// Ping tests the database connection
func (d *Database) Ping() error {
	sqlDB, err := d.Connection.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.Connection.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
