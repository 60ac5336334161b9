package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ammiranda/ordered_tree/repository"
)

// Error kinds. Every error returned by an Engine wraps exactly one of these.
var (
	// ErrNotFound is returned when the node ID does not resolve
	ErrNotFound = errors.New("node not found")
	// ErrParentNotFound is returned when the target parent ID does not resolve
	ErrParentNotFound = errors.New("parent node not found")
	// ErrSelfParent is returned when a node is given as its own parent
	ErrSelfParent = errors.New("node cannot be its own parent")
	// ErrCycle is returned when the target parent is a descendant of the node
	ErrCycle = errors.New("move would create a cycle")
	// ErrConflict is returned when the store aborted the transaction; the operation may be retried
	ErrConflict = errors.New("transaction conflict")
	// ErrLockTimeout is returned when a lock wait exceeded the store's timeout; the operation may be retried
	ErrLockTimeout = errors.New("lock timeout")
	// ErrStore is returned for any other failure of the underlying store
	ErrStore = errors.New("store error")
)

// Error describes a failed engine operation
type Error struct {
	Op     string          // create, move, delete, find, count, tree
	Tree   repository.Kind // hierarchy the operation ran against
	NodeID int64           // subject node, 0 when there is none
	Kind   error           // one of the Err* kinds above
	Cause  error           // underlying store error, if any
}

func (e *Error) Error() string {
	subject := string(e.Tree)
	if e.NodeID != 0 {
		subject = fmt.Sprintf("%s/%d", e.Tree, e.NodeID)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, subject, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, subject, e.Kind)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// IsRetryable reports whether the whole operation may be retried against fresh state
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrLockTimeout)
}

// IsValidation reports whether err was raised before any write was attempted
func IsValidation(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrParentNotFound) ||
		errors.Is(err, ErrSelfParent) ||
		errors.Is(err, ErrCycle)
}

// newError builds an Error, classifying store errors and keeping kinds raised by the engine itself
func newError(op string, tree repository.Kind, id int64, err error) *Error {
	var engErr *Error
	if errors.As(err, &engErr) {
		return engErr
	}
	for _, kind := range []error{ErrNotFound, ErrParentNotFound, ErrSelfParent, ErrCycle} {
		if err == kind {
			return &Error{Op: op, Tree: tree, NodeID: id, Kind: kind}
		}
	}

	kind := ErrStore
	switch {
	case errors.Is(err, repository.ErrNodeNotFound):
		kind = ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		kind = ErrConflict
	case errors.Is(err, repository.ErrLockTimeout), errors.Is(err, context.DeadlineExceeded):
		kind = ErrLockTimeout
	}
	return &Error{Op: op, Tree: tree, NodeID: id, Kind: kind, Cause: err}
}

// ErrorCode names the outcome of an operation for metrics and API responses
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrParentNotFound):
		return "parent_not_found"
	case errors.Is(err, ErrSelfParent):
		return "self_parent"
	case errors.Is(err, ErrCycle):
		return "cycle"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrLockTimeout):
		return "lock_timeout"
	default:
		return "store_error"
	}
}
