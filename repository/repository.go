package repository

import (
	"context"
	"errors"
)

// Kind names a node hierarchy. Each kind lives in its own table.
type Kind string

const (
	Definitions Kind = "definitions"
	Components  Kind = "components"
)

// Valid reports whether k is a known hierarchy
func (k Kind) Valid() bool {
	return k == Definitions || k == Components
}

// Node represents a stored row of an ordered tree
type Node struct {
	ID       int64  // Unique identifier for the node
	ParentID *int64 // Optional reference to the parent node's ID
	Position int    // Zero-based index among the parent's children
	Payload  []byte // JSON encoded payload, opaque to the store
}

// Sibling is the ordering key of one child inside a parent group
type Sibling struct {
	ID       int64
	Position int
}

// Repository defines the interface for data access operations on one kind.
// Reads through the repository take no locks; mutations go through Begin.
type Repository interface {
	// Initialize performs any necessary setup for the repository.
	// Returns an error if the backing table is not reachable.
	Initialize(ctx context.Context) error

	// Cleanup releases resources held by the repository.
	Cleanup(ctx context.Context) error

	// Kind returns the hierarchy this repository is bound to.
	Kind() Kind

	// Begin starts a write transaction.
	// Parameters:
	//   - ctx: Context for the transaction; cancelling it aborts the transaction
	// Returns:
	//   - A Tx that must be finished with Commit or Rollback
	//   - An error if the transaction could not be started
	Begin(ctx context.Context) (Tx, error)

	// GetNode retrieves a node by its ID.
	// Returns ErrNodeNotFound if no node exists with the given ID.
	GetNode(ctx context.Context, id int64) (*Node, error)

	// CountChildren returns the number of direct children of parentID.
	// A nil parentID addresses the root group.
	CountChildren(ctx context.Context, parentID *int64) (int, error)

	// GetAllNodes retrieves every node ordered by parent, position and ID.
	GetAllNodes(ctx context.Context) ([]*Node, error)
}

// Tx is a single write transaction against one kind.
// Every read made through a Tx is a locking read on stores that support row locks.
type Tx interface {
	// Find returns the node with the given ID or ErrNodeNotFound.
	Find(ctx context.Context, id int64) (*Node, error)

	// Exists reports whether a node with the given ID exists.
	Exists(ctx context.Context, id int64) (bool, error)

	// CountChildren returns the number of direct children of parentID.
	CountChildren(ctx context.Context, parentID *int64) (int, error)

	// MaxPosition returns the highest position in the group and false when the group is empty.
	MaxPosition(ctx context.Context, parentID *int64) (int, bool, error)

	// LockChildren locks the parent group and returns its children ordered by position then ID.
	LockChildren(ctx context.Context, parentID *int64) ([]Sibling, error)

	// SetPosition rewrites the position of one node.
	SetPosition(ctx context.Context, id int64, position int) error

	// SetParentAndPosition moves one node to a new parent and position.
	SetParentAndPosition(ctx context.Context, id int64, parentID *int64, position int) error

	// ShiftPositions adds delta to every position >= threshold in the group.
	// A non-zero skipID excludes that node from the shift.
	ShiftPositions(ctx context.Context, parentID *int64, threshold, delta int, skipID int64) error

	// BumpAll adds delta to every position in the group.
	BumpAll(ctx context.Context, parentID *int64, delta int) error

	// Insert stores a new node and returns its ID.
	Insert(ctx context.Context, parentID *int64, position int, payload []byte) (int64, error)

	// Delete removes a node. Descendants are removed by the store.
	Delete(ctx context.Context, id int64) error

	// Commit makes the transaction's writes visible.
	Commit() error

	// Rollback discards the transaction's writes. Calling it after Commit is a no-op.
	Rollback() error
}

// Common errors
var (
	// ErrNodeNotFound is returned when a requested node does not exist
	ErrNodeNotFound = errors.New("node not found")
	// ErrInvalidInput is returned when the input parameters are invalid
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict is returned when the store aborted the transaction (deadlock or serialization failure)
	ErrConflict = errors.New("transaction conflict")
	// ErrLockTimeout is returned when a lock could not be acquired in time
	ErrLockTimeout = errors.New("lock timeout")
	// ErrTxDone is returned when a finished transaction is used
	ErrTxDone = errors.New("transaction already finished")
)

// SameParent reports whether two parent references address the same group
func SameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
