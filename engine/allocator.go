package engine

import (
	"context"

	"github.com/ammiranda/ordered_tree/repository"
)

// DefaultParkOffset separates a parked node from every live position in its group
const DefaultParkOffset = 1000

// clampPosition bounds a requested insertion index to [0, n]
func clampPosition(requested, n int) int {
	if requested < 0 {
		return 0
	}
	if requested > n {
		return n
	}
	return requested
}

// openSlot shifts positions >= pos up by one so pos is free
func openSlot(ctx context.Context, tx repository.Tx, parentID *int64, pos int, skipID int64) error {
	return tx.ShiftPositions(ctx, parentID, pos, 1, skipID)
}

// closeGap shifts positions after pos down by one
func closeGap(ctx context.Context, tx repository.Tx, parentID *int64, pos int, skipID int64) error {
	return tx.ShiftPositions(ctx, parentID, pos+1, -1, skipID)
}

// park moves a node past every position its group can reach during the move
func park(ctx context.Context, tx repository.Tx, id int64, parentID *int64, offset int) error {
	max, ok, err := tx.MaxPosition(ctx, parentID)
	if err != nil {
		return err
	}
	if !ok {
		max = 0
	}
	return tx.SetPosition(ctx, id, max+offset+int(id))
}

// contiguous reports whether ordered siblings already hold positions 0..n-1
func contiguous(siblings []repository.Sibling) bool {
	for i, s := range siblings {
		if s.Position != i {
			return false
		}
	}
	return true
}

// reindex rewrites a group to 0..n-1 in (position, id) order and returns the
// number of rows rewritten. A clean group is left untouched. A drifted group is
// first bumped out of [0, n) and then renumbered.
func reindex(ctx context.Context, tx repository.Tx, parentID *int64) (int, error) {
	siblings, err := tx.LockChildren(ctx, parentID)
	if err != nil {
		return 0, err
	}
	if contiguous(siblings) {
		return 0, nil
	}

	if err := tx.BumpAll(ctx, parentID, len(siblings)); err != nil {
		return 0, err
	}
	for i, s := range siblings {
		if err := tx.SetPosition(ctx, s.ID, i); err != nil {
			return 0, err
		}
	}
	return len(siblings), nil
}

// lockGroups locks both groups of a move in a fixed global order: the root
// group first, then ascending parent ID. Returns the siblings of each group.
func lockGroups(ctx context.Context, tx repository.Tx, oldParent, newParent *int64) (oldSiblings, newSiblings []repository.Sibling, err error) {
	if repository.SameParent(oldParent, newParent) {
		oldSiblings, err = tx.LockChildren(ctx, oldParent)
		return oldSiblings, oldSiblings, err
	}

	oldFirst := oldParent == nil || (newParent != nil && *oldParent < *newParent)
	first, second := oldParent, newParent
	if !oldFirst {
		first, second = newParent, oldParent
	}

	a, err := tx.LockChildren(ctx, first)
	if err != nil {
		return nil, nil, err
	}
	b, err := tx.LockChildren(ctx, second)
	if err != nil {
		return nil, nil, err
	}
	if oldFirst {
		return a, b, nil
	}
	return b, a, nil
}
