package permissions

import (
	"errors"
	"time"
)

// Sentinel errors surfaced by this package. Stores wrap them with context;
// callers match with errors.Is.
var (
	// ErrNotFound indicates a referenced user, profile or permission set
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation, e.g. a duplicate
	// profile name.
	ErrConflict = errors.New("conflict")

	// ErrInvalidState indicates structurally broken input, e.g. a profile
	// granting a scope the catalog does not recognize.
	ErrInvalidState = errors.New("invalid state")
)

// Profile is a named base permission bundle ("role template"). Every user is
// assigned exactly one profile at a time. System profiles are seeded at
// migration time and are immutable through the API.
type Profile struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	IsSystem    bool      `json:"is_system"`
	Scopes      []Scope   `json:"scopes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedBy   *int64    `json:"created_by,omitempty"`
}

// PermissionSet is a named additive scope bundle assignable to any user
// independently of their profile.
type PermissionSet struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	Scopes      []Scope   `json:"scopes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedBy   *int64    `json:"created_by,omitempty"`
}

// SetAssignment ties a permission set to a user, optionally until an
// expiration instant. An assignment with a nil ExpiresAt is permanent.
// Expiry is evaluated lazily at decision time; expired rows are kept for
// audit history.
type SetAssignment struct {
	ID        int64      `json:"id"`
	SetID     int64      `json:"set_id"`
	UserID    int64      `json:"user_id"`
	GrantedBy *int64     `json:"granted_by,omitempty"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Effective reports whether the assignment contributes scopes at the given
// evaluation time.
func (a SetAssignment) Effective(at time.Time) bool {
	return a.ExpiresAt == nil || a.ExpiresAt.After(at)
}

// Built-in profile names.
const (
	ProfileAdmin        = "admin"
	ProfileSalesManager = "sales:manager"
	ProfileSalesRep     = "sales:rep"
	ProfileViewer       = "viewer"
)

// BuiltInProfiles returns the system profile definitions seeded into every
// deployment.
func BuiltInProfiles() []Profile {
	return []Profile{
		{
			Name:        ProfileAdmin,
			DisplayName: "Administrator",
			Description: "Full access to every module",
			IsSystem:    true,
			Scopes: []Scope{
				{Module: Wildcard, Resource: Wildcard, Action: Wildcard},
				{Module: Wildcard, Resource: Wildcard, Action: Wildcard, Qualifier: QualifierAll},
			},
		},
		{
			Name:        ProfileSalesManager,
			DisplayName: "Sales Manager",
			Description: "Manages proposals and booking orders across the team",
			IsSystem:    true,
			Scopes: []Scope{
				NewScope("sales", Wildcard, Wildcard),
				NewScope("sales", "proposals", "read").WithQualifier(QualifierAll),
				NewScope("sales", "bookings", "read").WithQualifier(QualifierAll),
				NewScope("reports", "dashboards", "read"),
				NewScope("reports", "dashboards", "export"),
				NewScope("core", "users", "read"),
				NewScope("core", "companies", "read"),
			},
		},
		{
			Name:        ProfileSalesRep,
			DisplayName: "Sales Representative",
			Description: "Creates and manages own proposals and bookings",
			IsSystem:    true,
			Scopes: []Scope{
				NewScope("sales", "proposals", "create"),
				NewScope("sales", "proposals", "read"),
				NewScope("sales", "proposals", "update"),
				NewScope("sales", "bookings", "create"),
				NewScope("sales", "bookings", "read"),
				NewScope("sales", "bookings", "update"),
				NewScope("sales", "mockups", "create"),
				NewScope("sales", "mockups", "read"),
				NewScope("reports", "dashboards", "read"),
			},
		},
		{
			Name:        ProfileViewer,
			DisplayName: "Viewer",
			Description: "Read-only access to sales records",
			IsSystem:    true,
			Scopes: []Scope{
				NewScope("sales", "proposals", "read"),
				NewScope("sales", "bookings", "read"),
				NewScope("reports", "dashboards", "read"),
			},
		},
	}
}
