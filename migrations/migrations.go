package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// sourceDir returns the embedded directory holding the migrations for a driver
func sourceDir(driverName string) (string, error) {
	switch driverName {
	case "postgres", "pgx":
		return "postgres", nil
	case "sqlite3":
		return "sqlite", nil
	default:
		return "", fmt.Errorf("no migrations for driver %q", driverName)
	}
}

// newMigrate opens a dedicated connection for golang-migrate; closing the
// returned instance closes that connection and nothing else.
func newMigrate(driverName, dsn string) (*migrate.Migrate, error) {
	dir, err := sourceDir(driverName)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening migration connection: %w", err)
	}

	var driver database.Driver
	if dir == "sqlite" {
		driver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	} else {
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating migration driver: %w", err)
	}

	src, err := iofs.New(files, dir)
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("error reading embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dir, driver)
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("error creating migration instance: %w", err)
	}
	return m, nil
}

func closeMigrate(m *migrate.Migrate) {
	if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
		slog.Warn("error closing migration instance", "source_error", srcErr, "database_error", dbErr)
	}
}

// RunMigrations applies all pending migrations
func RunMigrations(driverName, dsn string) error {
	m, err := newMigrate(driverName, dsn)
	if err != nil {
		return err
	}
	defer closeMigrate(m)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error running migrations: %w", err)
	}
	return nil
}

// RollbackMigration rolls back the last applied migration
func RollbackMigration(driverName, dsn string) error {
	m, err := newMigrate(driverName, dsn)
	if err != nil {
		return err
	}
	defer closeMigrate(m)

	if err := m.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNilVersion) || errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("no migrations to rollback")
		}
		return fmt.Errorf("error rolling back migration: %w", err)
	}
	return nil
}

// Version reports the applied schema version and whether it is dirty
func Version(driverName, dsn string) (uint, bool, error) {
	m, err := newMigrate(driverName, dsn)
	if err != nil {
		return 0, false, err
	}
	defer closeMigrate(m)

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("error reading schema version: %w", err)
	}
	return version, dirty, nil
}
