package engine

// TreeNode is a node with its ordered children
type TreeNode[P any] struct {
	ID       int64          `json:"id"`
	ParentID *int64         `json:"parentId"`
	Position int            `json:"position"`
	Payload  P              `json:"payload"`
	Children []*TreeNode[P] `json:"children"`
}

// FlatNode is one row of a pre-order walk
type FlatNode[P any] struct {
	ID       int64  `json:"id"`
	ParentID *int64 `json:"parentId"`
	Position int    `json:"position"`
	Depth    int    `json:"depth"`
	Payload  P      `json:"payload"`
}

// BuildTree nests nodes under their parents. Input must be ordered by
// (parent, position, id); that order is kept within each group. Nodes whose
// parent is not in the set are unreachable and dropped.
func BuildTree[P any](nodes []Node[P]) []*TreeNode[P] {
	byParent := make(map[int64][]*TreeNode[P])
	roots := make([]*TreeNode[P], 0)

	for _, n := range nodes {
		tn := &TreeNode[P]{
			ID:       n.ID,
			ParentID: n.ParentID,
			Position: n.Position,
			Payload:  n.Payload,
			Children: make([]*TreeNode[P], 0),
		}
		if n.ParentID == nil {
			roots = append(roots, tn)
			continue
		}
		byParent[*n.ParentID] = append(byParent[*n.ParentID], tn)
	}

	stack := make([]*TreeNode[P], len(roots))
	copy(stack, roots)
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, ok := byParent[current.ID]
		if !ok {
			continue
		}
		current.Children = children
		delete(byParent, current.ID)
		stack = append(stack, children...)
	}
	return roots
}

// Flatten walks the forest depth first, parents before children, annotating depth
func Flatten[P any](tree []*TreeNode[P]) []FlatNode[P] {
	type frame struct {
		node  *TreeNode[P]
		depth int
	}

	out := make([]FlatNode[P], 0)
	stack := make([]frame, 0, len(tree))
	for i := len(tree) - 1; i >= 0; i-- {
		stack = append(stack, frame{tree[i], 0})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		out = append(out, FlatNode[P]{
			ID:       f.node.ID,
			ParentID: f.node.ParentID,
			Position: f.node.Position,
			Depth:    f.depth,
			Payload:  f.node.Payload,
		})
		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{f.node.Children[i], f.depth + 1})
		}
	}
	return out
}
