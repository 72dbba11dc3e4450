package users

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested user or invite does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation, usually on email.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState indicates the operation does not apply to the user's
	// current state.
	ErrInvalidState = errors.New("invalid state")
)

// User is a platform account.
type User struct {
	ID          int64          `json:"id"`
	Email       string         `json:"email"`
	DisplayName string         `json:"display_name"`
	IsActive    bool           `json:"is_active"`
	IsPending   bool           `json:"is_pending"`
	ProfileID   *int64         `json:"profile_id,omitempty"`
	ManagerID   *int64         `json:"manager_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	LastLoginAt *time.Time     `json:"last_login_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Invite is a pending invitation to join the platform. The raw token is
// returned exactly once at creation; only its hash is stored.
type Invite struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	TokenPrefix string     `json:"token_prefix"`
	ProfileID   *int64     `json:"profile_id,omitempty"`
	InvitedBy   int64      `json:"invited_by"`
	ExpiresAt   time.Time  `json:"expires_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Live reports whether the invite can still be redeemed at the given time.
func (i *Invite) Live(at time.Time) bool {
	return i.AcceptedAt == nil && i.ExpiresAt.After(at)
}

// CreateUserRequest carries the fields for pre-provisioning a user.
type CreateUserRequest struct {
	Email       string         `json:"email"`
	DisplayName string         `json:"display_name"`
	ProfileID   *int64         `json:"profile_id,omitempty"`
	ManagerID   *int64         `json:"manager_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
