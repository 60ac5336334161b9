package engine

import (
	"context"
	"errors"

	"github.com/ammiranda/ordered_tree/repository"
)

// assertNoCycle rejects making candidateParentID the parent of nodeID when the
// candidate is the node itself, does not exist, or sits below the node.
// The upward walk keeps a visited set so a corrupted chain cannot loop forever.
func assertNoCycle(ctx context.Context, tx repository.Tx, nodeID, candidateParentID int64) error {
	if candidateParentID == nodeID {
		return ErrSelfParent
	}

	visited := make(map[int64]struct{})
	current := candidateParentID
	for {
		node, err := tx.Find(ctx, current)
		if errors.Is(err, repository.ErrNodeNotFound) {
			if current == candidateParentID {
				return ErrParentNotFound
			}
			// Dangling ancestor: the chain ends without reaching nodeID.
			return nil
		}
		if err != nil {
			return err
		}
		visited[current] = struct{}{}

		if node.ParentID == nil {
			return nil
		}
		next := *node.ParentID
		if next == nodeID {
			return ErrCycle
		}
		if _, seen := visited[next]; seen {
			return nil
		}
		current = next
	}
}
