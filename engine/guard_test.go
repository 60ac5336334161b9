package engine

import (
	"context"
	"testing"

	"github.com/ammiranda/ordered_tree/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssertNoCycle(t *testing.T) {
	repo := repository.NewMockRepository(repository.Definitions)
	repo.Seed(
		seed(1, nil, 0),
		seed(2, ptr(1), 0),
		seed(3, ptr(2), 0),
		seed(4, nil, 1),
		// 6 hangs below a parent that no longer exists
		seed(6, ptr(50), 0),
	)

	tests := []struct {
		name      string
		node      int64
		candidate int64
		want      error
	}{
		{name: "self", node: 2, candidate: 2, want: ErrSelfParent},
		{name: "missing parent", node: 2, candidate: 77, want: ErrParentNotFound},
		{name: "direct child", node: 1, candidate: 2, want: ErrCycle},
		{name: "grandchild", node: 1, candidate: 3, want: ErrCycle},
		{name: "unrelated", node: 3, candidate: 4, want: nil},
		{name: "ancestor", node: 3, candidate: 1, want: nil},
		{name: "dangling chain", node: 1, candidate: 6, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := repo.Begin(context.Background())
			require.NoError(t, err)
			defer tx.Rollback()

			err = assertNoCycle(context.Background(), tx, tt.node, tt.candidate)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestAssertNoCycle_CorruptedLoopTerminates(t *testing.T) {
	repo := repository.NewMockRepository(repository.Definitions)
	// 10 and 11 point at each other; neither reaches 1.
	repo.Seed(seed(1, nil, 0), seed(10, ptr(11), 0), seed(11, ptr(10), 0))

	tx, err := repo.Begin(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()

	assert.NoError(t, assertNoCycle(context.Background(), tx, 1, 10))
}
