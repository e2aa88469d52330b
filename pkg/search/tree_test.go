package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeStructure(t *testing.T) {
	tree := NewTree()

	root, err := tree.AddRoot("root question")
	require.NoError(t, err)
	assert.Equal(t, 0, root)

	_, err = tree.AddRoot("second root")
	assert.Error(t, err, "a tree has exactly one root")

	a, err := tree.AddChild(root, "question A")
	require.NoError(t, err)
	b, err := tree.AddChild(root, "question B")
	require.NoError(t, err)
	aa, err := tree.AddChild(a, "question A.1")
	require.NoError(t, err)

	assert.Equal(t, 4, tree.Len())

	rootNode, err := tree.Get(root)
	require.NoError(t, err)
	assert.Equal(t, []int{a, b}, rootNode.Children)
	assert.Equal(t, -1, rootNode.Parent)

	deep, err := tree.Get(aa)
	require.NoError(t, err)
	assert.Equal(t, 2, deep.Depth)
	assert.Equal(t, StatusUnexpanded, deep.Status)

	path, err := tree.Path(aa)
	require.NoError(t, err)
	assert.Equal(t, []int{root, a, aa}, path)

	_, err = tree.Get(99)
	assert.Error(t, err)
}

func TestTreeNoChildrenUnderPruned(t *testing.T) {
	tree := NewTree()
	root, err := tree.AddRoot("q")
	require.NoError(t, err)
	child, err := tree.AddChild(root, "sub")
	require.NoError(t, err)

	require.NoError(t, tree.Update(child, func(n *Node) {
		n.Status = StatusPruned
		n.PruneReason = PruneOperator
	}))

	_, err = tree.AddChild(child, "grandchild")
	assert.Error(t, err)
}

func TestBackpropagateIncrementsRootPath(t *testing.T) {
	tree := NewTree()
	root, _ := tree.AddRoot("q")
	a, _ := tree.AddChild(root, "a")
	aa, _ := tree.AddChild(a, "aa")
	b, _ := tree.AddChild(root, "b")

	const n = 7
	for i := 0; i < n; i++ {
		require.NoError(t, tree.Backpropagate(aa, 0.5))
	}

	rootNode, _ := tree.Get(root)
	aNode, _ := tree.Get(a)
	aaNode, _ := tree.Get(aa)
	bNode, _ := tree.Get(b)

	assert.Equal(t, int64(n), rootNode.Visits, "root visit count equals backpropagation calls")
	assert.Equal(t, int64(n), aNode.Visits)
	assert.Equal(t, int64(n), aaNode.Visits)
	assert.Equal(t, int64(0), bNode.Visits, "siblings off the path are untouched")
	assert.InDelta(t, float64(n)*0.5, rootNode.Value, 1e-9)
}

func TestTreeSnapshotRestoreRoundTrip(t *testing.T) {
	tree := NewTree()
	root, _ := tree.AddRoot("q")
	a, _ := tree.AddChild(root, "a")
	_, _ = tree.AddChild(root, "b")
	require.NoError(t, tree.Update(a, func(n *Node) {
		n.Status = StatusExpanded
		n.Answer = "answer"
		n.Variants = []Variant{{Strategy: "deductive", Steps: []string{"s1"}, Conclusion: "answer", MeanScore: 0.7}}
	}))
	require.NoError(t, tree.Backpropagate(a, 0.7))

	snap := tree.Snapshot()

	restored := NewTree()
	require.NoError(t, restored.Restore(snap))

	assert.Equal(t, tree.Len(), restored.Len())
	for i := 0; i < tree.Len(); i++ {
		orig, err := tree.Get(i)
		require.NoError(t, err)
		copied, err := restored.Get(i)
		require.NoError(t, err)
		assert.Equal(t, orig.Parent, copied.Parent)
		assert.Equal(t, orig.Children, copied.Children)
		assert.Equal(t, orig.Status, copied.Status)
		assert.Equal(t, orig.Visits, copied.Visits)
		assert.InDelta(t, orig.Value, copied.Value, 1e-9)
		assert.Equal(t, orig.Variants, copied.Variants)
	}

	// Restored arena is independent of the snapshot slice.
	snap[0].Question = "mutated"
	fresh, err := restored.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "q", fresh.Question)
}

func TestRestoreRejectsSparseIDs(t *testing.T) {
	restored := NewTree()
	err := restored.Restore([]*Node{{ID: 3, Parent: -1}})
	assert.Error(t, err)
}
