package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsTable = "schema_migrations"

// GooseDialect maps a storage driver name to the goose dialect.
func GooseDialect(driver string) (string, error) {
	switch driver {
	case DriverSQLite:
		return "sqlite3", nil
	case DriverPostgres:
		return "postgres", nil
	}
	return "", fmt.Errorf("unsupported sql storage driver %q", driver)
}

// SQLDriverName maps a storage driver name to the database/sql driver.
func SQLDriverName(driver string) (string, error) {
	switch driver {
	case DriverSQLite:
		return "sqlite3", nil
	case DriverPostgres:
		return "pgx", nil
	}
	return "", fmt.Errorf("unsupported sql storage driver %q", driver)
}

// Migrate applies (or, with rollback, reverts one of) the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB, driver string, rollback bool) error {
	dialect, err := GooseDialect(driver)
	if err != nil {
		return err
	}

	goose.SetBaseFS(migrations)
	goose.SetTableName(migrationsTable)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("goose: %w", err)
	}

	if rollback {
		if err := goose.DownContext(ctx, db, "migrations"); err != nil {
			return fmt.Errorf("goose down: %w", err)
		}
		return nil
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
