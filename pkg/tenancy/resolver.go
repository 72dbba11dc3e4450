package tenancy

import (
	"context"
	"sort"
)

// TreeSource supplies the unit tree snapshot the resolver traverses. The
// store implements it directly; TreeCache wraps it with a shared cache.
type TreeSource interface {
	Tree(ctx context.Context) (*Tree, error)
}

// AssignmentSource supplies a user's direct unit assignments.
type AssignmentSource interface {
	AssignedCompanyIDs(ctx context.Context, userID int64) ([]int64, error)
}

// Resolver computes partition access from unit assignments.
type Resolver struct {
	tree        TreeSource
	assignments AssignmentSource
}

// NewResolver creates a resolver over the given sources.
func NewResolver(tree TreeSource, assignments AssignmentSource) *Resolver {
	return &Resolver{tree: tree, assignments: assignments}
}

// AccessibleLeafUnits expands the assigned unit ids to the partition keys of
// every reachable leaf. Unknown ids contribute nothing; missing assignments
// degrade access rather than fault.
func (r *Resolver) AccessibleLeafUnits(ctx context.Context, assignedIDs []int64) ([]string, error) {
	tree, err := r.tree.Tree(ctx)
	if err != nil {
		return nil, err
	}

	keys := make(map[string]bool)
	visited := make(map[int64]bool)
	queue := make([]int64, 0, len(assignedIDs))
	queue = append(queue, assignedIDs...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		node, ok := tree.Nodes[id]
		if !ok {
			continue
		}
		if node.Kind == KindLeaf {
			keys[node.PartitionKey] = true
		}
		queue = append(queue, tree.Children[id]...)
	}

	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// UserPartitions resolves the partition keys accessible to a user through
// their direct unit assignments.
func (r *Resolver) UserPartitions(ctx context.Context, userID int64) ([]string, error) {
	assigned, err := r.assignments.AssignedCompanyIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return r.AccessibleLeafUnits(ctx, assigned)
}

// AncestryClosure returns the unit and all of its ancestors, walking parent
// links to the root. An unknown unit yields an empty closure.
func (r *Resolver) AncestryClosure(ctx context.Context, unitID int64) ([]int64, error) {
	tree, err := r.tree.Tree(ctx)
	if err != nil {
		return nil, err
	}

	var closure []int64
	visited := make(map[int64]bool)
	id := unitID
	for {
		if visited[id] {
			break
		}
		node, ok := tree.Nodes[id]
		if !ok {
			break
		}
		visited[id] = true
		closure = append(closure, id)
		if node.ParentID == nil {
			break
		}
		id = *node.ParentID
	}
	return closure, nil
}

// ReachableUnits expands the assigned unit ids to every reachable unit,
// groups included. Sharing uses this to decide team membership: a user
// assigned to a group belongs to each descendant team.
func (r *Resolver) ReachableUnits(ctx context.Context, assignedIDs []int64) ([]int64, error) {
	tree, err := r.tree.Tree(ctx)
	if err != nil {
		return nil, err
	}

	visited := make(map[int64]bool)
	var out []int64
	queue := make([]int64, 0, len(assignedIDs))
	queue = append(queue, assignedIDs...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		if _, ok := tree.Nodes[id]; !ok {
			continue
		}
		visited[id] = true
		out = append(out, id)
		queue = append(queue, tree.Children[id]...)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// MemberUnits returns every unit the user belongs to, directly or through an
// assigned ancestor group.
func (r *Resolver) MemberUnits(ctx context.Context, userID int64) ([]int64, error) {
	assigned, err := r.assignments.AssignedCompanyIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return r.ReachableUnits(ctx, assigned)
}

// UserBelongsTo reports whether the user is a member of the unit, directly
// or via an assigned ancestor group.
func (r *Resolver) UserBelongsTo(ctx context.Context, userID, unitID int64) (bool, error) {
	units, err := r.MemberUnits(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, id := range units {
		if id == unitID {
			return true, nil
		}
	}
	return false, nil
}
