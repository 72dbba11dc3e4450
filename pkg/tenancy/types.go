package tenancy

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates a referenced company or user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation, e.g. a duplicate
	// partition key.
	ErrConflict = errors.New("conflict")

	// ErrInvalidState indicates a structurally invalid company definition.
	ErrInvalidState = errors.New("invalid state")
)

// CompanyKind distinguishes aggregator nodes from partition-owning leaves.
type CompanyKind string

const (
	// KindGroup marks an aggregator unit that owns no data partition.
	KindGroup CompanyKind = "group"
	// KindLeaf marks a unit owning exactly one isolated data partition.
	KindLeaf CompanyKind = "leaf"
)

// Company is a node in the organizational unit tree.
type Company struct {
	ID           int64       `json:"id"`
	Name         string      `json:"name"`
	DisplayName  string      `json:"display_name"`
	ParentID     *int64      `json:"parent_id,omitempty"`
	Kind         CompanyKind `json:"kind"`
	PartitionKey string      `json:"partition_key,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Validate checks the structural invariants of a company definition.
func (c *Company) Validate() error {
	switch c.Kind {
	case KindGroup:
		if c.PartitionKey != "" {
			return fmt.Errorf("%w: group unit %q must not carry a partition key", ErrInvalidState, c.Name)
		}
	case KindLeaf:
		if c.PartitionKey == "" {
			return fmt.Errorf("%w: leaf unit %q requires a partition key", ErrInvalidState, c.Name)
		}
	default:
		return fmt.Errorf("%w: unknown unit kind %q", ErrInvalidState, c.Kind)
	}
	if c.Name == "" {
		return fmt.Errorf("%w: unit name is required", ErrInvalidState)
	}
	return nil
}

// Assignment ties a user to an organizational unit.
type Assignment struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	CompanyID int64     `json:"company_id"`
	AddedBy   *int64    `json:"added_by,omitempty"`
	AddedAt   time.Time `json:"added_at"`
}

// Tree is an in-memory snapshot of the full unit tree, indexed for
// traversal.
type Tree struct {
	Nodes    map[int64]*Company `json:"nodes"`
	Children map[int64][]int64  `json:"children"`
}

// NewTree builds the traversal indexes from a flat company list.
func NewTree(companies []Company) *Tree {
	t := &Tree{
		Nodes:    make(map[int64]*Company, len(companies)),
		Children: make(map[int64][]int64),
	}
	for i := range companies {
		c := companies[i]
		t.Nodes[c.ID] = &c
	}
	for _, c := range t.Nodes {
		if c.ParentID != nil {
			t.Children[*c.ParentID] = append(t.Children[*c.ParentID], c.ID)
		}
	}
	return t
}
