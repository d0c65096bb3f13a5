package repository

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations holding the SQL files.
const MigrationsDir = "migrations"

// Driver names registered with database/sql.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// GooseDialect maps a driver name onto the goose dialect.
func GooseDialect(driver string) (string, error) {
	switch driver {
	case DriverPostgres:
		return "postgres", nil
	case DriverSQLite:
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("no migrations for driver %q", driver)
	}
}

// PrepareGoose points goose at the embedded migrations for driver.
func PrepareGoose(driver string) error {
	dialect, err := GooseDialect(driver)
	if err != nil {
		return err
	}
	goose.SetBaseFS(Migrations)
	return goose.SetDialect(dialect)
}

// Migrate applies every pending migration.
func Migrate(db *sql.DB, driver string) error {
	if err := PrepareGoose(driver); err != nil {
		return err
	}
	if err := goose.Up(db, MigrationsDir); err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}
