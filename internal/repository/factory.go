package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Config selects and tunes the backend.
type Config struct {
	Driver       string // "memory", "postgres", "sqlite"
	DSN          string
	MaxOpenConns int
	MaxIdleConns int

	// AutoMigrate applies pending migrations on open.
	AutoMigrate bool
}

// OpenDB opens a database/sql handle for a SQL driver.
func OpenDB(driver, dsn string) (*sql.DB, error) {
	var name string
	switch driver {
	case DriverPostgres:
		name = "pgx"
	case DriverSQLite:
		name = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	if dsn == "" {
		return nil, fmt.Errorf("a DSN is required for driver %s", driver)
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// One connection keeps :memory: databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// New creates the configured Repository.
func New(cfg Config, logger *zap.SugaredLogger) (Repository, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	switch cfg.Driver {
	case DriverMemory, "":
		logger.Infow("Using in-memory repository")
		return NewMemoryRepository(), nil
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := OpenDB(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.Driver == DriverPostgres {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}

	if cfg.AutoMigrate {
		if err := Migrate(db, cfg.Driver); err != nil {
			db.Close()
			return nil, err
		}
	}

	logger.Infow("Using SQL repository", "driver", cfg.Driver)
	return NewSQLRepository(db, cfg.Driver, logger), nil
}
