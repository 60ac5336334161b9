package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ammiranda/ordered_tree/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) *Database {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Driver:      config.DriverSQLite,
		Path:        filepath.Join(t.TempDir(), "tree.db"),
		LockTimeout: time.Second,
	}
	db, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteRepository(t *testing.T) {
	ctx := context.Background()
	db := openTestSQLite(t)
	assert.Equal(t, "sqlite3", db.Dialect())

	repo := db.Repository(Definitions)
	require.NoError(t, repo.Initialize(ctx))

	tx, err := repo.Begin(ctx)
	require.NoError(t, err)
	root, err := tx.Insert(ctx, nil, 0, []byte(`{"title":"root"}`))
	require.NoError(t, err)
	a, err := tx.Insert(ctx, &root, 0, []byte(`{"title":"a"}`))
	require.NoError(t, err)
	b, err := tx.Insert(ctx, &root, 1, []byte(`{"title":"b"}`))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	node, err := repo.GetNode(ctx, a)
	require.NoError(t, err)
	require.NotNil(t, node.ParentID)
	assert.Equal(t, root, *node.ParentID)
	assert.Equal(t, `{"title":"a"}`, string(node.Payload))

	n, err := repo.CountChildren(ctx, &root)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = repo.CountChildren(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tx, err = repo.Begin(ctx)
	require.NoError(t, err)
	siblings, err := tx.LockChildren(ctx, &root)
	require.NoError(t, err)
	assert.Equal(t, []Sibling{{ID: a, Position: 0}, {ID: b, Position: 1}}, siblings)

	require.NoError(t, tx.ShiftPositions(ctx, &root, 0, 1, b))
	require.NoError(t, tx.SetPosition(ctx, b, 0))
	max, ok, err := tx.MaxPosition(ctx, &root)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, max)

	exists, err := tx.Exists(ctx, b)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = tx.Exists(ctx, 999)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.ErrorIs(t, tx.SetPosition(ctx, 999, 0), ErrNodeNotFound)
	require.NoError(t, tx.Commit())

	nodes, err := repo.GetAllNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, root, nodes[0].ID)
	assert.Equal(t, b, nodes[1].ID)
	assert.Equal(t, a, nodes[2].ID)
}

func TestSQLiteRepository_DeleteCascadesAndRollback(t *testing.T) {
	ctx := context.Background()
	repo := openTestSQLite(t).Repository(Components)

	tx, err := repo.Begin(ctx)
	require.NoError(t, err)
	root, err := tx.Insert(ctx, nil, 0, []byte(`{}`))
	require.NoError(t, err)
	child, err := tx.Insert(ctx, &root, 0, []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, err = repo.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Delete(ctx, root))
	require.NoError(t, tx.Rollback())

	_, err = repo.GetNode(ctx, child)
	require.NoError(t, err, "rolled back delete leaves the subtree in place")

	tx, err = repo.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Delete(ctx, root))
	require.NoError(t, tx.Commit())

	_, err = repo.GetNode(ctx, child)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestSQLiteRepository_KindsAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := openTestSQLite(t)

	tx, err := db.Repository(Definitions).Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Insert(ctx, nil, 0, []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	nodes, err := db.Repository(Components).GetAllNodes(ctx)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestDialectRebind(t *testing.T) {
	pg := postgresDialect(time.Second)
	assert.Equal(t, "UPDATE t SET a = $1 WHERE b = $2", pg.rebind("UPDATE t SET a = ? WHERE b = ?"))

	lite := sqliteDialect(time.Second)
	assert.Equal(t, "SELECT ?", lite.rebind("SELECT ?"))
}

func TestDSN(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver: config.DriverPostgres, Host: "db", Port: 5432, User: "u", Password: "p", DBName: "tree", SSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=tree sslmode=disable", DSN(cfg))

	lite := &config.DatabaseConfig{Driver: config.DriverSQLite, Path: "/tmp/x.db", LockTimeout: 2 * time.Second}
	assert.Equal(t, "file:/tmp/x.db?_foreign_keys=on&_txlock=immediate&_journal_mode=WAL&_busy_timeout=2000", DSN(lite))
}
