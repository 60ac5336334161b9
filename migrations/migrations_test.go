package migrations

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteDSN(t *testing.T) string {
	t.Helper()
	return "file:" + filepath.Join(t.TempDir(), "migrate.db") + "?_foreign_keys=on"
}

func tableExists(t *testing.T, dsn, table string) bool {
	t.Helper()
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	defer db.Close()

	var n int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
	require.NoError(t, err)
	return n == 1
}

func TestRunMigrations_SQLite(t *testing.T) {
	dsn := sqliteDSN(t)

	version, dirty, err := Version("sqlite3", dsn)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, RunMigrations("sqlite3", dsn))
	require.NoError(t, RunMigrations("sqlite3", dsn), "re-running is a no-op")

	version, dirty, err = Version("sqlite3", dsn)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
	assert.True(t, tableExists(t, dsn, "definitions"))
	assert.True(t, tableExists(t, dsn, "components"))

	require.NoError(t, RollbackMigration("sqlite3", dsn))
	version, _, err = Version("sqlite3", dsn)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, tableExists(t, dsn, "components"))
	assert.True(t, tableExists(t, dsn, "definitions"))
}

func TestUnknownDriver(t *testing.T) {
	err := RunMigrations("mysql", "ignored")
	assert.ErrorContains(t, err, "no migrations for driver")
}
