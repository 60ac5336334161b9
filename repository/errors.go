package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Postgres SQLSTATE codes that mark a transaction as safe to retry
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// classify maps driver errors onto ErrConflict and ErrLockTimeout, keeping the original in the chain
func classify(err error) error {
	if err == nil {
		return nil
	}
	if code := pgErrorCode(err); code != "" {
		switch code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %w", ErrConflict, err)
		case codeLockNotAvailable:
			return fmt.Errorf("%w: %w", ErrLockTimeout, err)
		}
		return err
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %w", ErrLockTimeout, err)
		}
	}
	return err
}

// pgErrorCode extracts the SQLSTATE from either Postgres driver
func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr != nil {
		return string(pqErr.Code)
	}
	return ""
}
