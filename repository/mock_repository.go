package repository

import (
	"context"
	"sort"
	"sync"
)

// MockRepository implements Repository in memory for tests and the Lambda demo.
// Write transactions run one at a time against a private copy that replaces the
// committed state on Commit.
type MockRepository struct {
	kind  Kind
	mu    sync.RWMutex
	nodes map[int64]*Node
	next  int64
	sem   chan struct{}

	statsMu sync.Mutex
	writes  int
	failIn  int
	failErr error
}

// NewMockRepository creates a new mock repository for one kind
func NewMockRepository(kind Kind) *MockRepository {
	return &MockRepository{
		kind:  kind,
		nodes: make(map[int64]*Node),
		next:  1,
		sem:   make(chan struct{}, 1),
	}
}

// Initialize performs any necessary setup
func (m *MockRepository) Initialize(ctx context.Context) error {
	return nil
}

// Cleanup drops all stored nodes
func (m *MockRepository) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = make(map[int64]*Node)
	m.next = 1
	return nil
}

// Kind returns the hierarchy served by the repository
func (m *MockRepository) Kind() Kind {
	return m.kind
}

// Seed stores nodes verbatim, bypassing every invariant. Tests use it to build exact fixtures.
func (m *MockRepository) Seed(nodes ...Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range nodes {
		m.nodes[n.ID] = cloneNode(&n)
		if n.ID >= m.next {
			m.next = n.ID + 1
		}
	}
}

// Snapshot returns a copy of the committed nodes ordered by ID
func (m *MockRepository) Snapshot() []Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, *cloneNode(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// WriteCount returns the number of write statements issued so far, including rolled back ones
func (m *MockRepository) WriteCount() int {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.writes
}

// FailOnWrite makes the nth write statement from now return err. n <= 0 disables the fault.
func (m *MockRepository) FailOnWrite(n int, err error) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	m.failIn = n
	m.failErr = err
}

// recordWrite counts a write statement and reports an injected failure
func (m *MockRepository) recordWrite() error {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	m.writes++
	if m.failIn > 0 {
		m.failIn--
		if m.failIn == 0 {
			return m.failErr
		}
	}
	return nil
}

// Begin waits for the single writer slot and snapshots the committed state
func (m *MockRepository) Begin(ctx context.Context) (Tx, error) {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	m.mu.RLock()
	working := make(map[int64]*Node, len(m.nodes))
	for id, n := range m.nodes {
		working[id] = cloneNode(n)
	}
	next := m.next
	m.mu.RUnlock()

	return &mockTx{repo: m, nodes: working, next: next}, nil
}

// GetNode retrieves a committed node by ID
func (m *MockRepository) GetNode(ctx context.Context, id int64) (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, ok := m.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return cloneNode(node), nil
}

// CountChildren counts the committed children of a parent group
func (m *MockRepository) CountChildren(ctx context.Context, parentID *int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(childrenOf(m.nodes, parentID)), nil
}

// GetAllNodes retrieves all committed nodes, root group first, then by parent, position and ID
func (m *MockRepository) GetAllNodes(ctx context.Context) ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Node, 0, len(m.nodes))
	for _, node := range m.nodes {
		result = append(result, cloneNode(node))
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if (a.ParentID == nil) != (b.ParentID == nil) {
			return a.ParentID == nil
		}
		if a.ParentID != nil && *a.ParentID != *b.ParentID {
			return *a.ParentID < *b.ParentID
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.ID < b.ID
	})
	return result, nil
}

// childrenOf returns the children of a group ordered by position then ID
func childrenOf(nodes map[int64]*Node, parentID *int64) []*Node {
	var children []*Node
	for _, n := range nodes {
		if SameParent(n.ParentID, parentID) {
			children = append(children, n)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		if children[i].Position != children[j].Position {
			return children[i].Position < children[j].Position
		}
		return children[i].ID < children[j].ID
	})
	return children
}

func cloneNode(n *Node) *Node {
	c := &Node{ID: n.ID, Position: n.Position}
	if n.ParentID != nil {
		p := *n.ParentID
		c.ParentID = &p
	}
	if n.Payload != nil {
		c.Payload = append([]byte(nil), n.Payload...)
	}
	return c
}

// mockTx is a write transaction over a private copy of the nodes
type mockTx struct {
	repo  *MockRepository
	nodes map[int64]*Node
	next  int64
	done  bool
}

func (t *mockTx) Find(ctx context.Context, id int64) (*Node, error) {
	if t.done {
		return nil, ErrTxDone
	}
	node, ok := t.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return cloneNode(node), nil
}

func (t *mockTx) Exists(ctx context.Context, id int64) (bool, error) {
	if t.done {
		return false, ErrTxDone
	}
	_, ok := t.nodes[id]
	return ok, nil
}

func (t *mockTx) CountChildren(ctx context.Context, parentID *int64) (int, error) {
	if t.done {
		return 0, ErrTxDone
	}
	return len(childrenOf(t.nodes, parentID)), nil
}

func (t *mockTx) MaxPosition(ctx context.Context, parentID *int64) (int, bool, error) {
	if t.done {
		return 0, false, ErrTxDone
	}
	children := childrenOf(t.nodes, parentID)
	if len(children) == 0 {
		return 0, false, nil
	}
	max := children[0].Position
	for _, c := range children[1:] {
		if c.Position > max {
			max = c.Position
		}
	}
	return max, true, nil
}

func (t *mockTx) LockChildren(ctx context.Context, parentID *int64) ([]Sibling, error) {
	if t.done {
		return nil, ErrTxDone
	}
	children := childrenOf(t.nodes, parentID)
	siblings := make([]Sibling, len(children))
	for i, c := range children {
		siblings[i] = Sibling{ID: c.ID, Position: c.Position}
	}
	return siblings, nil
}

// write guards every mutating statement
func (t *mockTx) write() error {
	if t.done {
		return ErrTxDone
	}
	return t.repo.recordWrite()
}

func (t *mockTx) SetPosition(ctx context.Context, id int64, position int) error {
	if err := t.write(); err != nil {
		return err
	}
	node, ok := t.nodes[id]
	if !ok {
		return ErrNodeNotFound
	}
	node.Position = position
	return nil
}

func (t *mockTx) SetParentAndPosition(ctx context.Context, id int64, parentID *int64, position int) error {
	if err := t.write(); err != nil {
		return err
	}
	node, ok := t.nodes[id]
	if !ok {
		return ErrNodeNotFound
	}
	if parentID != nil {
		if _, ok := t.nodes[*parentID]; !ok {
			return ErrNodeNotFound
		}
		p := *parentID
		node.ParentID = &p
	} else {
		node.ParentID = nil
	}
	node.Position = position
	return nil
}

func (t *mockTx) ShiftPositions(ctx context.Context, parentID *int64, threshold, delta int, skipID int64) error {
	if err := t.write(); err != nil {
		return err
	}
	for _, n := range t.nodes {
		if SameParent(n.ParentID, parentID) && n.Position >= threshold && n.ID != skipID {
			n.Position += delta
		}
	}
	return nil
}

func (t *mockTx) BumpAll(ctx context.Context, parentID *int64, delta int) error {
	if err := t.write(); err != nil {
		return err
	}
	for _, n := range t.nodes {
		if SameParent(n.ParentID, parentID) {
			n.Position += delta
		}
	}
	return nil
}

func (t *mockTx) Insert(ctx context.Context, parentID *int64, position int, payload []byte) (int64, error) {
	if err := t.write(); err != nil {
		return 0, err
	}
	if parentID != nil {
		if _, ok := t.nodes[*parentID]; !ok {
			return 0, ErrNodeNotFound
		}
	}
	id := t.next
	t.next++
	t.nodes[id] = cloneNode(&Node{ID: id, ParentID: parentID, Position: position, Payload: payload})
	return id, nil
}

// Delete removes the node and, like ON DELETE CASCADE, all of its descendants
func (t *mockTx) Delete(ctx context.Context, id int64) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, ok := t.nodes[id]; !ok {
		return ErrNodeNotFound
	}

	toDelete := []int64{id}
	for len(toDelete) > 0 {
		current := toDelete[len(toDelete)-1]
		toDelete = toDelete[:len(toDelete)-1]
		for nodeID, node := range t.nodes {
			if node.ParentID != nil && *node.ParentID == current {
				toDelete = append(toDelete, nodeID)
			}
		}
		delete(t.nodes, current)
	}
	return nil
}

func (t *mockTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.repo.mu.Lock()
	t.repo.nodes = t.nodes
	t.repo.next = t.next
	t.repo.mu.Unlock()
	<-t.repo.sem
	return nil
}

func (t *mockTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	<-t.repo.sem
	return nil
}
