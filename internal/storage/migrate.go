package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"ledger/internal/core"
)

// schemaTable records which embedded schema file has been applied.
const schemaTable = "ledger_schema"

//go:embed migrations/*.sql
var schemaFS embed.FS

// ensureSchema brings the file at dsn up to the embedded schema and returns
// the version it is at. A half-applied schema is reported, never repaired.
func ensureSchema(dsn string) (uint, error) {
	m, err := newSchemaMigrator(dsn)
	if err != nil {
		return 0, fmt.Errorf("ensure schema: %w: %w", core.ErrStorage, err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("ensure schema: %w: %w", core.ErrStorage, err)
	}

	version, dirty, err := m.Version()
	switch {
	case err != nil:
		return 0, fmt.Errorf("read schema version: %w: %w", core.ErrStorage, err)
	case dirty:
		return version, fmt.Errorf("schema version %d is dirty: %w", version, core.ErrStorage)
	}
	return version, nil
}

// newSchemaMigrator pairs the embedded files with a dedicated handle on dsn;
// closing the migrator closes that handle, never the store's pool.
func newSchemaMigrator(dsn string) (*migrate.Migrate, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{MigrationsTable: schemaTable})
	if err != nil {
		db.Close()
		return nil, err
	}

	src, err := iofs.New(schemaFS, "migrations")
	if err != nil {
		driver.Close()
		return nil, err
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		driver.Close()
		return nil, err
	}
	return m, nil
}
