package auth

import (
	"errors"
	"time"
)

var (
	// ErrInvalidToken indicates the presented token is unknown, revoked or
	// expired.
	ErrInvalidToken = errors.New("invalid token")
)

// APIToken is a stored service token.
type APIToken struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	TokenHash    string     `json:"-"`
	TokenPrefix  string     `json:"token_prefix"`
	Name         string     `json:"name"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokedBy    *int64     `json:"revoked_by,omitempty"`
	RevokeReason string     `json:"revoke_reason,omitempty"`
}

// Valid reports whether the token is usable at the given time.
func (t *APIToken) Valid(at time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	if t.ExpiresAt != nil && !t.ExpiresAt.After(at) {
		return false
	}
	return true
}

// AuthContext identifies the authenticated caller of a request.
type AuthContext struct {
	UserID  int64
	TokenID int64
}
