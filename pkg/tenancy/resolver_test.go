package tenancy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTree struct {
	tree *Tree
}

func (s *staticTree) Tree(ctx context.Context) (*Tree, error) {
	return s.tree, nil
}

type staticAssignments map[int64][]int64

func (s staticAssignments) AssignedCompanyIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s[userID], nil
}

func ptr(id int64) *int64 { return &id }

// mediaGroupTree builds a holding-company tree:
//
//	MMG (1, group)
//	├── Backlite Media (2, group)
//	│   ├── Backlite Dubai (3, leaf: backlite-dubai)
//	│   └── Backlite UK (4, leaf: backlite-uk)
//	└── Viola Communications (5, leaf: viola)
func mediaGroupTree() *Tree {
	return NewTree([]Company{
		{ID: 1, Name: "mmg", Kind: KindGroup},
		{ID: 2, Name: "backlite-media", ParentID: ptr(1), Kind: KindGroup},
		{ID: 3, Name: "backlite-dubai", ParentID: ptr(2), Kind: KindLeaf, PartitionKey: "backlite-dubai"},
		{ID: 4, Name: "backlite-uk", ParentID: ptr(2), Kind: KindLeaf, PartitionKey: "backlite-uk"},
		{ID: 5, Name: "viola", ParentID: ptr(1), Kind: KindLeaf, PartitionKey: "viola"},
	})
}

func TestResolver_AccessibleLeafUnits(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(&staticTree{tree: mediaGroupTree()}, staticAssignments{})

	t.Run("group expands to all descendant leaves", func(t *testing.T) {
		keys, err := r.AccessibleLeafUnits(ctx, []int64{1})
		require.NoError(t, err)
		assert.Equal(t, []string{"backlite-dubai", "backlite-uk", "viola"}, keys)
	})

	t.Run("intermediate group", func(t *testing.T) {
		keys, err := r.AccessibleLeafUnits(ctx, []int64{2})
		require.NoError(t, err)
		assert.Equal(t, []string{"backlite-dubai", "backlite-uk"}, keys)
	})

	t.Run("leaf yields only itself", func(t *testing.T) {
		keys, err := r.AccessibleLeafUnits(ctx, []int64{5})
		require.NoError(t, err)
		assert.Equal(t, []string{"viola"}, keys)
	})

	t.Run("overlapping assignments deduplicate", func(t *testing.T) {
		keys, err := r.AccessibleLeafUnits(ctx, []int64{2, 3})
		require.NoError(t, err)
		assert.Equal(t, []string{"backlite-dubai", "backlite-uk"}, keys)
	})

	t.Run("unknown ids contribute nothing", func(t *testing.T) {
		keys, err := r.AccessibleLeafUnits(ctx, []int64{999, 3})
		require.NoError(t, err)
		assert.Equal(t, []string{"backlite-dubai"}, keys)
	})

	t.Run("no assignments means no partitions", func(t *testing.T) {
		keys, err := r.AccessibleLeafUnits(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}

func TestResolver_AccessibleLeafUnits_CycleSafe(t *testing.T) {
	// A corrupted parent edge must not hang the traversal.
	cyclic := NewTree([]Company{
		{ID: 1, Name: "a", ParentID: ptr(2), Kind: KindGroup},
		{ID: 2, Name: "b", ParentID: ptr(1), Kind: KindGroup},
		{ID: 3, Name: "c", ParentID: ptr(2), Kind: KindLeaf, PartitionKey: "c"},
	})
	r := NewResolver(&staticTree{tree: cyclic}, staticAssignments{})

	keys, err := r.AccessibleLeafUnits(context.Background(), []int64{1})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, keys)
}

func TestResolver_UserPartitions(t *testing.T) {
	ctx := context.Background()
	assignments := staticAssignments{
		10: {2},    // regional manager
		11: {3, 5}, // cross-agency analyst
		12: nil,    // unassigned
	}
	r := NewResolver(&staticTree{tree: mediaGroupTree()}, assignments)

	keys, err := r.UserPartitions(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"backlite-dubai", "backlite-uk"}, keys)

	keys, err = r.UserPartitions(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, []string{"backlite-dubai", "viola"}, keys)

	keys, err = r.UserPartitions(ctx, 12)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestResolver_AncestryClosure(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(&staticTree{tree: mediaGroupTree()}, staticAssignments{})

	closure, err := r.AncestryClosure(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2, 1}, closure)

	closure, err = r.AncestryClosure(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, closure)

	closure, err = r.AncestryClosure(ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, closure)
}

func TestResolver_AncestryClosure_CycleSafe(t *testing.T) {
	cyclic := NewTree([]Company{
		{ID: 1, Name: "a", ParentID: ptr(2), Kind: KindGroup},
		{ID: 2, Name: "b", ParentID: ptr(1), Kind: KindGroup},
	})
	r := NewResolver(&staticTree{tree: cyclic}, staticAssignments{})

	closure, err := r.AncestryClosure(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, closure)
}

func TestResolver_Membership(t *testing.T) {
	ctx := context.Background()
	assignments := staticAssignments{
		10: {2}, // assigned to the Backlite group
		11: {5}, // assigned to the Viola leaf
	}
	r := NewResolver(&staticTree{tree: mediaGroupTree()}, assignments)

	units, err := r.MemberUnits(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 4}, units)

	// Group assignment implies membership of each descendant team.
	ok, err := r.UserBelongsTo(ctx, 10, 4)
	require.NoError(t, err)
	assert.True(t, ok)

	// But not of sibling subtrees.
	ok, err = r.UserBelongsTo(ctx, 10, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.UserBelongsTo(ctx, 11, 5)
	require.NoError(t, err)
	assert.True(t, ok)
}
