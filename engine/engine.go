// Package engine maintains parent-ordered trees whose sibling groups always
// hold the contiguous positions 0..n-1. Every mutation runs in one store
// transaction and either commits a clean tree or rolls back without effect.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ammiranda/ordered_tree/repository"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ammiranda/ordered_tree/engine"

// Node is a decoded tree node
type Node[P any] struct {
	ID       int64  `json:"id"`
	ParentID *int64 `json:"parentId"`
	Position int    `json:"position"`
	Payload  P      `json:"payload"`
}

type options struct {
	logger     *slog.Logger
	hook       StateHook
	tracer     trace.Tracer
	parkOffset int
}

// Option configures an Engine
type Option func(*options)

// WithLogger sets the logger used for mutation events
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStateHook observes every state transition
func WithStateHook(hook StateHook) Option {
	return func(o *options) { o.hook = hook }
}

// WithTracer overrides the tracer taken from the global OpenTelemetry provider
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithParkOffset overrides DefaultParkOffset
func WithParkOffset(offset int) Option {
	return func(o *options) {
		if offset > 0 {
			o.parkOffset = offset
		}
	}
}

// Engine applies create, move and delete to one hierarchy. P is the payload type.
type Engine[P any] struct {
	repo       repository.Repository
	kind       repository.Kind
	logger     *slog.Logger
	hook       StateHook
	tracer     trace.Tracer
	parkOffset int
}

// New creates an engine over repo
func New[P any](repo repository.Repository, opts ...Option) *Engine[P] {
	o := options{
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
		parkOffset: DefaultParkOffset,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine[P]{
		repo:       repo,
		kind:       repo.Kind(),
		logger:     o.logger.With("kind", string(repo.Kind())),
		hook:       o.hook,
		tracer:     o.tracer,
		parkOffset: o.parkOffset,
	}
}

// Kind returns the hierarchy the engine mutates
func (e *Engine[P]) Kind() repository.Kind {
	return e.kind
}

// outcome lets a mutation report a result label other than its error, such as a no-op move
type outcome struct {
	label string
}

// mutate runs fn inside one transaction and drives the shared part of the state machine
func (e *Engine[P]) mutate(ctx context.Context, op string, id int64, fn func(ctx context.Context, tx repository.Tx, m *mutation, out *outcome) error) (err error) {
	ctx, span := e.tracer.Start(ctx, "tree."+op, trace.WithAttributes(
		attribute.String("tree.kind", string(e.kind)),
		attribute.Int64("tree.node_id", id),
	))
	defer span.End()

	start := time.Now()
	m := &mutation{op: op, id: id, kind: e.kind, state: StateIdle, hook: e.hook, logger: e.logger}
	out := &outcome{}

	defer func() {
		label := out.label
		if err != nil {
			label = ErrorCode(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, label)
		}
		if label == "" {
			label = "ok"
		}
		span.SetAttributes(attribute.String("tree.result", label))
		observe(e.kind, op, label, start)
	}()

	tx, err := e.repo.Begin(ctx)
	if err != nil {
		m.to(ctx, StateAborted)
		return newError(op, e.kind, id, err)
	}

	m.to(ctx, StateValidating)
	if err := fn(ctx, tx, m, out); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			e.logger.ErrorContext(ctx, "rollback failed", "op", op, "id", id, "error", rbErr)
		}
		m.to(ctx, StateAborted)
		engErr := newError(op, e.kind, id, err)
		e.logAbort(ctx, engErr)
		return engErr
	}

	if m.state == StateCommitted {
		// No-op: nothing was written, release the transaction.
		if err := tx.Rollback(); err != nil {
			e.logger.WarnContext(ctx, "releasing no-op transaction", "op", op, "id", id, "error", err)
		}
		return nil
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		m.to(ctx, StateAborted)
		engErr := newError(op, e.kind, id, err)
		e.logAbort(ctx, engErr)
		return engErr
	}
	m.to(ctx, StateCommitted)
	return nil
}

func (e *Engine[P]) logAbort(ctx context.Context, err *Error) {
	switch {
	case IsValidation(err):
		e.logger.InfoContext(ctx, "mutation rejected", "op", err.Op, "id", err.NodeID, "reason", err.Kind.Error())
	case IsRetryable(err):
		e.logger.WarnContext(ctx, "mutation aborted", "op", err.Op, "id", err.NodeID, "error", err)
	default:
		e.logger.ErrorContext(ctx, "mutation failed", "op", err.Op, "id", err.NodeID, "error", err)
	}
}

// Create inserts a node under parentID. A nil position appends to the group; an
// out-of-range position is clamped into [0, n].
func (e *Engine[P]) Create(ctx context.Context, parentID *int64, position *int, payload P) (*Node[P], error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Op: "create", Tree: e.kind, Kind: ErrStore, Cause: fmt.Errorf("encoding payload: %w", err)}
	}

	var created *Node[P]
	err = e.mutate(ctx, "create", 0, func(ctx context.Context, tx repository.Tx, m *mutation, _ *outcome) error {
		if parentID != nil {
			// Locks the parent row so a concurrent delete waits for this insert.
			if _, err := tx.Find(ctx, *parentID); err != nil {
				if errors.Is(err, repository.ErrNodeNotFound) {
					return ErrParentNotFound
				}
				return err
			}
		}

		siblings, err := tx.LockChildren(ctx, parentID)
		if err != nil {
			return err
		}
		m.to(ctx, StateLocked)

		pos := len(siblings)
		if position != nil {
			pos = clampPosition(*position, len(siblings))
		}
		if err := openSlot(ctx, tx, parentID, pos, 0); err != nil {
			return err
		}
		id, err := tx.Insert(ctx, parentID, pos, raw)
		if err != nil {
			return err
		}
		m.id = id

		created = &Node[P]{ID: id, ParentID: copyID(parentID), Position: pos, Payload: payload}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "node created", "id", created.ID, "parent_id", idAttr(parentID), "position", created.Position)
	return created, nil
}

// Move relocates a node to position under newParentID. The position is the
// insertion index in the target group before the node is removed from its
// current slot, clamped into range. Moving a node onto its current slot
// performs no writes.
func (e *Engine[P]) Move(ctx context.Context, id int64, newParentID *int64, position int) error {
	var rewritten int
	var target int
	err := e.mutate(ctx, "move", id, func(ctx context.Context, tx repository.Tx, m *mutation, out *outcome) error {
		node, err := tx.Find(ctx, id)
		if err != nil {
			return err
		}
		if newParentID != nil {
			if err := assertNoCycle(ctx, tx, id, *newParentID); err != nil {
				return err
			}
		}

		oldParent, oldPos := node.ParentID, node.Position
		sameParent := repository.SameParent(oldParent, newParentID)

		if sameParent {
			n, err := tx.CountChildren(ctx, oldParent)
			if err != nil {
				return err
			}
			// Inserting before itself or before its next sibling leaves the order unchanged.
			if p := clampPosition(position, n); p == oldPos || p == oldPos+1 {
				out.label = "noop"
				target = oldPos
				m.to(ctx, StateCommitted)
				return nil
			}
		}

		oldSiblings, newSiblings, err := lockGroups(ctx, tx, oldParent, newParentID)
		if err != nil {
			return err
		}
		m.to(ctx, StateLocked)

		target = clampPosition(position, len(newSiblings))

		if err := park(ctx, tx, id, oldParent, e.parkOffset); err != nil {
			return err
		}
		m.to(ctx, StateParked)

		if err := closeGap(ctx, tx, oldParent, oldPos, id); err != nil {
			return err
		}

		remaining := len(newSiblings)
		if sameParent {
			remaining = len(oldSiblings) - 1
			if target > oldPos {
				target--
			}
		}
		target = clampPosition(target, remaining)

		if err := openSlot(ctx, tx, newParentID, target, id); err != nil {
			return err
		}
		if err := tx.SetParentAndPosition(ctx, id, newParentID, target); err != nil {
			return err
		}

		n, err := reindex(ctx, tx, oldParent)
		if err != nil {
			return err
		}
		rewritten += n
		if !sameParent {
			n, err := reindex(ctx, tx, newParentID)
			if err != nil {
				return err
			}
			rewritten += n
		}
		m.to(ctx, StateReindexed)
		return nil
	})
	if err != nil {
		return err
	}

	if rewritten > 0 {
		reindexedRows.WithLabelValues(string(e.kind)).Add(float64(rewritten))
		e.logger.WarnContext(ctx, "sibling positions drifted during move", "id", id, "rewritten", rewritten)
	}
	e.logger.InfoContext(ctx, "node moved", "id", id, "parent_id", idAttr(newParentID), "position", target)
	return nil
}

// Delete removes a node, its descendants (through the store's cascade) and closes the gap it leaves
func (e *Engine[P]) Delete(ctx context.Context, id int64) error {
	err := e.mutate(ctx, "delete", id, func(ctx context.Context, tx repository.Tx, m *mutation, _ *outcome) error {
		node, err := tx.Find(ctx, id)
		if err != nil {
			return err
		}

		if _, err := tx.LockChildren(ctx, node.ParentID); err != nil {
			return err
		}
		m.to(ctx, StateLocked)

		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		return closeGap(ctx, tx, node.ParentID, node.Position, 0)
	})
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "node deleted", "id", id)
	return nil
}

// Find returns a committed node
func (e *Engine[P]) Find(ctx context.Context, id int64) (*Node[P], error) {
	row, err := e.repo.GetNode(ctx, id)
	if err != nil {
		return nil, newError("find", e.kind, id, err)
	}
	node, err := decode[P](row)
	if err != nil {
		return nil, newError("find", e.kind, id, err)
	}
	return node, nil
}

// ChildrenCount returns the number of direct children of parentID; nil counts roots
func (e *Engine[P]) ChildrenCount(ctx context.Context, parentID *int64) (int, error) {
	n, err := e.repo.CountChildren(ctx, parentID)
	if err != nil {
		var id int64
		if parentID != nil {
			id = *parentID
		}
		return 0, newError("count", e.kind, id, err)
	}
	return n, nil
}

// FetchTree reads every node without locks and assembles the ordered forest
func (e *Engine[P]) FetchTree(ctx context.Context) ([]*TreeNode[P], error) {
	ctx, span := e.tracer.Start(ctx, "tree.fetch", trace.WithAttributes(attribute.String("tree.kind", string(e.kind))))
	defer span.End()

	rows, err := e.repo.GetAllNodes(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, newError("tree", e.kind, 0, err)
	}

	nodes := make([]Node[P], 0, len(rows))
	for _, row := range rows {
		node, err := decode[P](row)
		if err != nil {
			return nil, newError("tree", e.kind, row.ID, err)
		}
		nodes = append(nodes, *node)
	}
	span.SetAttributes(attribute.Int("tree.nodes", len(nodes)))
	return BuildTree(nodes), nil
}

// Flatten is the depth-annotated pre-order walk of a tree returned by FetchTree
func (e *Engine[P]) Flatten(tree []*TreeNode[P]) []FlatNode[P] {
	return Flatten(tree)
}

func decode[P any](row *repository.Node) (*Node[P], error) {
	node := &Node[P]{ID: row.ID, ParentID: row.ParentID, Position: row.Position}
	if len(row.Payload) > 0 {
		if err := json.Unmarshal(row.Payload, &node.Payload); err != nil {
			return nil, fmt.Errorf("decoding payload of node %d: %w", row.ID, err)
		}
	}
	return node, nil
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// idAttr renders an optional ID for logs; the root group is logged as "root"
func idAttr(id *int64) any {
	if id == nil {
		return "root"
	}
	return *id
}
