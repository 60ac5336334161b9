package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dialect captures the differences between the SQL backends
type dialect struct {
	name        string // migration source and driver family
	numbered    bool   // $1 placeholders instead of ?
	lockSuffix  string // appended to locking reads
	nullSafeEq  string // NULL-aware equality operator
	returningID bool   // INSERT ... RETURNING id is supported
	groupLocks  bool   // transaction scoped advisory locks are available
	lockTimeout time.Duration
}

// rebind rewrites ? placeholders for dialects with numbered parameters
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Database is an open SQL connection pool shared by the per-kind repositories
type Database struct {
	db      *sql.DB
	dialect dialect
}

// Repository returns the repository for one kind
func (d *Database) Repository(kind Kind) *SQLRepository {
	return &SQLRepository{db: d.db, kind: kind, dialect: d.dialect}
}

// DB exposes the underlying pool
func (d *Database) DB() *sql.DB {
	return d.db
}

// Dialect returns the backend family, "postgres" or "sqlite3"
func (d *Database) Dialect() string {
	return d.dialect.name
}

// Close closes the pool
func (d *Database) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// SQLRepository implements Repository over database/sql
type SQLRepository struct {
	db      *sql.DB
	kind    Kind
	dialect dialect
}

// query expands the table name and placeholders of a statement
func (r *SQLRepository) query(q string) string {
	return r.dialect.rebind(strings.ReplaceAll(q, "{table}", string(r.kind)))
}

// parentClause matches a parent group, including the root group
func (r *SQLRepository) parentClause() string {
	return "parent_id " + r.dialect.nullSafeEq + " ?"
}

// Initialize checks that the kind's table is reachable
func (r *SQLRepository) Initialize(ctx context.Context) error {
	if !r.kind.Valid() {
		return fmt.Errorf("unknown kind %q: %w", r.kind, ErrInvalidInput)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, r.query("SELECT COUNT(*) FROM {table} WHERE 1 = 0")).Scan(&n); err != nil {
		return fmt.Errorf("error checking table %s: %w", r.kind, err)
	}
	return nil
}

// Cleanup is a no-op; the pool is owned by Database
func (r *SQLRepository) Cleanup(ctx context.Context) error {
	return nil
}

// Kind returns the hierarchy served by the repository
func (r *SQLRepository) Kind() Kind {
	return r.kind
}

// Begin starts a write transaction
func (r *SQLRepository) Begin(ctx context.Context) (Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error beginning transaction: %w", classify(err))
	}
	if r.dialect.name == "postgres" && r.dialect.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.dialect.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("error setting lock timeout: %w", classify(err))
		}
	}
	return &sqlTx{tx: tx, r: r}, nil
}

// GetNode retrieves a node by ID
func (r *SQLRepository) GetNode(ctx context.Context, id int64) (*Node, error) {
	row := r.db.QueryRowContext(ctx, r.query("SELECT id, parent_id, position, payload FROM {table} WHERE id = ?"), id)
	node, err := scanNode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNodeNotFound
		}
		return nil, fmt.Errorf("error getting node: %w", classify(err))
	}
	return node, nil
}

// CountChildren counts the direct children of a parent group
func (r *SQLRepository) CountChildren(ctx context.Context, parentID *int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, r.query("SELECT COUNT(*) FROM {table} WHERE "+r.parentClause()), parentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("error counting children: %w", classify(err))
	}
	return n, nil
}

// GetAllNodes retrieves all nodes, root group first, then by parent, position and ID
func (r *SQLRepository) GetAllNodes(ctx context.Context) ([]*Node, error) {
	rows, err := r.db.QueryContext(ctx, r.query(
		"SELECT id, parent_id, position, payload FROM {table} ORDER BY (parent_id IS NOT NULL), parent_id, position, id"))
	if err != nil {
		return nil, fmt.Errorf("error getting all nodes: %w", classify(err))
	}
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning node: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", classify(err))
	}
	return nodes, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(s scanner) (*Node, error) {
	var node Node
	var parentID sql.NullInt64
	var payload []byte
	if err := s.Scan(&node.ID, &parentID, &node.Position, &payload); err != nil {
		return nil, err
	}
	if parentID.Valid {
		node.ParentID = &parentID.Int64
	}
	node.Payload = payload
	return &node, nil
}

// sqlTx implements Tx over *sql.Tx
type sqlTx struct {
	tx *sql.Tx
	r  *SQLRepository
}

func (t *sqlTx) Find(ctx context.Context, id int64) (*Node, error) {
	row := t.tx.QueryRowContext(ctx, t.r.query("SELECT id, parent_id, position, payload FROM {table} WHERE id = ?"+t.r.dialect.lockSuffix), id)
	node, err := scanNode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNodeNotFound
		}
		return nil, fmt.Errorf("error finding node %d: %w", id, classify(err))
	}
	return node, nil
}

func (t *sqlTx) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, t.r.query("SELECT EXISTS(SELECT 1 FROM {table} WHERE id = ?)"), id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking node %d: %w", id, classify(err))
	}
	return exists, nil
}

func (t *sqlTx) CountChildren(ctx context.Context, parentID *int64) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, t.r.query("SELECT COUNT(*) FROM {table} WHERE "+t.r.parentClause()), parentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("error counting children: %w", classify(err))
	}
	return n, nil
}

func (t *sqlTx) MaxPosition(ctx context.Context, parentID *int64) (int, bool, error) {
	var max sql.NullInt64
	err := t.tx.QueryRowContext(ctx, t.r.query("SELECT MAX(position) FROM {table} WHERE "+t.r.parentClause()), parentID).Scan(&max)
	if err != nil {
		return 0, false, fmt.Errorf("error reading max position: %w", classify(err))
	}
	if !max.Valid {
		return 0, false, nil
	}
	return int(max.Int64), true, nil
}

// groupLockKey names a parent group for advisory locking
func (t *sqlTx) groupLockKey(parentID *int64) string {
	if parentID == nil {
		return string(t.r.kind) + ":root"
	}
	return string(t.r.kind) + ":" + strconv.FormatInt(*parentID, 10)
}

func (t *sqlTx) LockChildren(ctx context.Context, parentID *int64) ([]Sibling, error) {
	if t.r.dialect.groupLocks {
		// Covers empty groups, which have no rows for FOR UPDATE to lock.
		if _, err := t.tx.ExecContext(ctx, t.r.query("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))"), t.groupLockKey(parentID)); err != nil {
			return nil, fmt.Errorf("error locking group: %w", classify(err))
		}
	}
	rows, err := t.tx.QueryContext(ctx, t.r.query(
		"SELECT id, position FROM {table} WHERE "+t.r.parentClause()+" ORDER BY position, id"+t.r.dialect.lockSuffix), parentID)
	if err != nil {
		return nil, fmt.Errorf("error locking children: %w", classify(err))
	}
	defer rows.Close()

	var siblings []Sibling
	for rows.Next() {
		var s Sibling
		if err := rows.Scan(&s.ID, &s.Position); err != nil {
			return nil, fmt.Errorf("error scanning sibling: %w", err)
		}
		siblings = append(siblings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating children: %w", classify(err))
	}
	return siblings, nil
}

func (t *sqlTx) exec(ctx context.Context, what, q string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, t.r.query(q), args...)
	if err != nil {
		return nil, fmt.Errorf("error %s: %w", what, classify(err))
	}
	return res, nil
}

func (t *sqlTx) SetPosition(ctx context.Context, id int64, position int) error {
	res, err := t.exec(ctx, "setting position", "UPDATE {table} SET position = ? WHERE id = ?", position, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (t *sqlTx) SetParentAndPosition(ctx context.Context, id int64, parentID *int64, position int) error {
	res, err := t.exec(ctx, "moving node", "UPDATE {table} SET parent_id = ?, position = ? WHERE id = ?", parentID, position, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (t *sqlTx) ShiftPositions(ctx context.Context, parentID *int64, threshold, delta int, skipID int64) error {
	_, err := t.exec(ctx, "shifting positions",
		"UPDATE {table} SET position = position + ? WHERE "+t.r.parentClause()+" AND position >= ? AND id <> ?",
		delta, parentID, threshold, skipID)
	return err
}

func (t *sqlTx) BumpAll(ctx context.Context, parentID *int64, delta int) error {
	_, err := t.exec(ctx, "bumping positions",
		"UPDATE {table} SET position = position + ? WHERE "+t.r.parentClause(), delta, parentID)
	return err
}

func (t *sqlTx) Insert(ctx context.Context, parentID *int64, position int, payload []byte) (int64, error) {
	if t.r.dialect.returningID {
		var id int64
		err := t.tx.QueryRowContext(ctx, t.r.query(
			"INSERT INTO {table} (parent_id, position, payload) VALUES (?, ?, ?) RETURNING id"),
			parentID, position, string(payload)).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("error creating node: %w", classify(err))
		}
		return id, nil
	}
	res, err := t.exec(ctx, "creating node",
		"INSERT INTO {table} (parent_id, position, payload) VALUES (?, ?, ?)", parentID, position, string(payload))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (t *sqlTx) Delete(ctx context.Context, id int64) error {
	res, err := t.exec(ctx, "deleting node", "DELETE FROM {table} WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (t *sqlTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return ErrTxDone
		}
		return fmt.Errorf("error committing transaction: %w", classify(err))
	}
	return nil
}

func (t *sqlTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("error rolling back transaction: %w", err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNodeNotFound
	}
	return nil
}
