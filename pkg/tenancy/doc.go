// Package tenancy models the organizational unit tree and resolves which
// isolated data partitions a user may query.
//
// Units form a strict tree: every unit has at most one parent, and a unit is
// either a group (an aggregator owning no data of its own) or a leaf (owning
// exactly one isolated partition identified by a stable key). Users are
// assigned to units of either kind; assignment to a group implicitly grants
// access to every descendant leaf.
//
// Cycles are forbidden by invariant, not by structural prevention, so every
// traversal in this package carries a visited set and breaks cycles
// defensively instead of trusting the data.
package tenancy
