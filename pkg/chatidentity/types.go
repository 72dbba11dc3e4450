package chatidentity

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the referenced identity or user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates the identity is already linked to a different
	// user.
	ErrConflict = errors.New("conflict")

	// ErrInvalidState indicates structurally broken input.
	ErrInvalidState = errors.New("invalid state")
)

// LinkState is the linkage axis of an identity's state.
type LinkState string

const (
	// StateUnknown means no identity row exists for the external id.
	StateUnknown LinkState = "unknown"
	// StateUnlinked means the identity is stored but references no user.
	StateUnlinked LinkState = "unlinked"
	// StateLinkedActive means the referenced user exists and is active.
	StateLinkedActive LinkState = "linked_active"
	// StateLinkedInactive means the referenced user is inactive or missing.
	StateLinkedInactive LinkState = "linked_inactive"
)

// Reason explains an authorization decision.
type Reason string

const (
	ReasonBlocked      Reason = "blocked"
	ReasonOpenAccess   Reason = "open_access"
	ReasonUnknownUser  Reason = "unknown_user"
	ReasonNotLinked    Reason = "not_linked"
	ReasonUserInactive Reason = "user_inactive"
	ReasonLinkedActive Reason = "linked_active"
)

// Decision is the outcome of authorizing one interaction.
type Decision struct {
	Allowed bool      `json:"allowed"`
	Reason  Reason    `json:"reason"`
	State   LinkState `json:"state"`
	UserID  *int64    `json:"user_id,omitempty"`
}

// Snapshot carries the profile fields observed on an inbound channel event.
// Empty fields leave the stored value untouched.
type Snapshot struct {
	Username    string         `json:"username,omitempty"`
	DisplayName string         `json:"display_name,omitempty"`
	Email       string         `json:"email,omitempty"`
	AvatarURL   string         `json:"avatar_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Identity is a participant known through an external chat channel.
type Identity struct {
	ID          int64          `json:"id"`
	ExternalID  string         `json:"external_id"`
	WorkspaceID string         `json:"workspace_id"`
	Username    string         `json:"username,omitempty"`
	DisplayName string         `json:"display_name,omitempty"`
	Email       string         `json:"email,omitempty"`
	AvatarURL   string         `json:"avatar_url,omitempty"`
	UserID      *int64         `json:"user_id,omitempty"`
	LinkedBy    *int64         `json:"linked_by,omitempty"`
	LinkedAt    *time.Time     `json:"linked_at,omitempty"`
	Blocked     bool           `json:"blocked"`
	BlockReason string         `json:"block_reason,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	FirstSeenAt time.Time      `json:"first_seen_at"`
	LastSeenAt  time.Time      `json:"last_seen_at"`
}

// Linked reports whether the identity references a platform user.
func (i *Identity) Linked() bool {
	return i != nil && i.UserID != nil
}
