package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ammiranda/ordered_tree/config"
	"github.com/ammiranda/ordered_tree/migrations"

	_ "github.com/mattn/go-sqlite3"
)

// sqliteDialect relies on BEGIN IMMEDIATE; the database write lock serializes mutations
func sqliteDialect(lockTimeout time.Duration) dialect {
	return dialect{
		name:        "sqlite3",
		nullSafeEq:  "IS",
		lockTimeout: lockTimeout,
	}
}

// DefaultSQLitePath returns the database file used when DB_PATH is not set
func DefaultSQLitePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	dataDir := filepath.Join(homeDir, ".ordered_tree")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		// Fallback to current directory if home directory is not accessible
		dataDir = "."
	}
	return filepath.Join(dataDir, "tree.db")
}

// SQLiteDSN enables foreign keys (for cascading deletes), immediate write
// transactions and a busy timeout derived from the lock timeout.
func SQLiteDSN(path string, lockTimeout time.Duration) string {
	return fmt.Sprintf("file:%s?_foreign_keys=on&_txlock=immediate&_journal_mode=WAL&_busy_timeout=%d",
		path, lockTimeout.Milliseconds())
}

// OpenSQLite opens (creating if needed) a SQLite database and applies pending migrations
func OpenSQLite(ctx context.Context, cfg *config.DatabaseConfig) (*Database, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultSQLitePath()
	}
	lockTimeout := cfg.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = config.DefaultLockTimeout
	}
	dsn := SQLiteDSN(path, lockTimeout)

	if err := migrations.RunMigrations(config.DriverSQLite, dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open(config.DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening sqlite database: %w", err)
	}
	// A single connection keeps writers strictly serialized.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error pinging sqlite database: %w", err)
	}

	return &Database{db: db, dialect: sqliteDialect(lockTimeout)}, nil
}
