package search

import (
	"sync"

	"github.com/pondera-ai/pondera/pkg/errors"
)

// Tree is the arena. A single writer (the engine) mutates it; readers take
// the shared lock so variant scoring can inspect the tree concurrently.
type Tree struct {
	mu    sync.RWMutex
	nodes []*Node
}

// NewTree creates an empty arena.
func NewTree() *Tree {
	return &Tree{}
}

// Len returns the number of nodes ever created.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// AddRoot creates the root node. Only valid on an empty tree.
func (t *Tree) AddRoot(question string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.nodes) != 0 {
		return 0, errors.New(errors.NotExpandable, "tree already has a root")
	}
	t.nodes = append(t.nodes, &Node{
		ID:       0,
		Parent:   -1,
		Question: question,
		Status:   StatusUnexpanded,
	})
	return 0, nil
}

// AddChild creates a child under parent and returns its id.
func (t *Tree) AddChild(parent int, question string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, err := t.getLocked(parent)
	if err != nil {
		return 0, err
	}
	if p.Status == StatusPruned {
		return 0, errors.WithFields(
			errors.New(errors.NotExpandable, "pruned nodes accept no children"),
			errors.Fields{"node_id": parent},
		)
	}
	id := len(t.nodes)
	t.nodes = append(t.nodes, &Node{
		ID:       id,
		Parent:   parent,
		Depth:    p.Depth + 1,
		Question: question,
		Status:   StatusUnexpanded,
	})
	p.Children = append(p.Children, id)
	return id, nil
}

// Get returns a node by id.
func (t *Tree) Get(id int) (*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.getLocked(id)
}

func (t *Tree) getLocked(id int) (*Node, error) {
	if id < 0 || id >= len(t.nodes) {
		return nil, errors.WithFields(
			errors.New(errors.ResourceNotFound, "no such node"),
			errors.Fields{"node_id": id},
		)
	}
	return t.nodes[id], nil
}

// Update applies fn to a node under the write lock.
func (t *Tree) Update(id int, fn func(*Node)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.getLocked(id)
	if err != nil {
		return err
	}
	fn(n)
	return nil
}

// Read applies fn to a node under the read lock.
func (t *Tree) Read(id int, fn func(*Node)) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, err := t.getLocked(id)
	if err != nil {
		return err
	}
	fn(n)
	return nil
}

// Path returns the ids from the root down to id, inclusive.
func (t *Tree) Path(id int) ([]int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, err := t.getLocked(id)
	if err != nil {
		return nil, err
	}
	var reversed []int
	for {
		reversed = append(reversed, n.ID)
		if n.Parent < 0 {
			break
		}
		n = t.nodes[n.Parent]
	}
	path := make([]int, len(reversed))
	for i, id := range reversed {
		path[len(reversed)-1-i] = id
	}
	return path, nil
}

// Backpropagate increments visit counts and accumulates value from id up to
// the root.
func (t *Tree) Backpropagate(id int, value float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.getLocked(id)
	if err != nil {
		return err
	}
	for {
		n.Visits++
		n.Value += value
		if n.Parent < 0 {
			return nil
		}
		n = t.nodes[n.Parent]
	}
}

// Snapshot returns deep copies of every node in id order.
func (t *Tree) Snapshot() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Node, len(t.nodes))
	for i, n := range t.nodes {
		cp := *n
		cp.Children = append([]int(nil), n.Children...)
		cp.Variants = append([]Variant(nil), n.Variants...)
		out[i] = &cp
	}
	return out
}

// Restore replaces the arena with a snapshot. Node ids must be dense and in
// order, the form Snapshot produces.
func (t *Tree) Restore(nodes []*Node) error {
	for i, n := range nodes {
		if n.ID != i {
			return errors.WithFields(
				errors.New(errors.InvalidInput, "snapshot node ids must be dense"),
				errors.Fields{"index": i, "node_id": n.ID},
			)
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes = make([]*Node, len(nodes))
	for i, n := range nodes {
		cp := *n
		cp.Children = append([]int(nil), n.Children...)
		cp.Variants = append([]Variant(nil), n.Variants...)
		t.nodes[i] = &cp
	}
	return nil
}
