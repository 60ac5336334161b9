package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ammiranda/ordered_tree/config"
	"github.com/ammiranda/ordered_tree/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

// postgresDialect locks rows with FOR UPDATE and parent groups with advisory locks
func postgresDialect(lockTimeout time.Duration) dialect {
	return dialect{
		name:        "postgres",
		numbered:    true,
		lockSuffix:  " FOR UPDATE",
		nullSafeEq:  "IS NOT DISTINCT FROM",
		returningID: true,
		groupLocks:  true,
		lockTimeout: lockTimeout,
	}
}

// PostgresDSN builds a key/value connection string understood by both lib/pq and pgx
func PostgresDSN(cfg *config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.DBName,
		cfg.SSLMode,
	)
}

// OpenPostgres connects to PostgreSQL through lib/pq or pgx and applies pending migrations
func OpenPostgres(ctx context.Context, cfg *config.DatabaseConfig) (*Database, error) {
	if !cfg.IsPostgres() {
		return nil, fmt.Errorf("driver %q is not a postgres driver: %w", cfg.Driver, ErrInvalidInput)
	}
	dsn := PostgresDSN(cfg)

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}

	if err := migrations.RunMigrations(cfg.Driver, dsn); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db, dialect: postgresDialect(cfg.LockTimeout)}, nil
}

// Open connects to the database selected by cfg.Driver
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*Database, error) {
	if cfg.Driver == config.DriverSQLite {
		return OpenSQLite(ctx, cfg)
	}
	return OpenPostgres(ctx, cfg)
}

// DSN returns the connection string for cfg.Driver
func DSN(cfg *config.DatabaseConfig) string {
	if cfg.Driver == config.DriverSQLite {
		return SQLiteDSN(cfg.Path, cfg.LockTimeout)
	}
	return PostgresDSN(cfg)
}
