package sharing

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates a referenced rule, share or record does not
	// exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("conflict")

	// ErrInvalidState indicates a structurally invalid rule or share, e.g.
	// a record share with zero or two targets.
	ErrInvalidState = errors.New("invalid state")
)

// AccessLevel is the totally ordered access scale for records.
type AccessLevel string

const (
	// LevelNone grants nothing. Never stored; it is the zero outcome of
	// resolution.
	LevelNone AccessLevel = ""
	// LevelRead grants read-only visibility.
	LevelRead AccessLevel = "read"
	// LevelReadWrite grants read and mutation.
	LevelReadWrite AccessLevel = "read_write"
	// LevelFull grants read, mutation, deletion and re-sharing.
	LevelFull AccessLevel = "full"
)

// Rank orders access levels; higher rank dominates.
func (l AccessLevel) Rank() int {
	switch l {
	case LevelRead:
		return 1
	case LevelReadWrite:
		return 2
	case LevelFull:
		return 3
	default:
		return 0
	}
}

// Covers reports whether the level satisfies a requested level.
func (l AccessLevel) Covers(requested AccessLevel) bool {
	return l.Rank() >= requested.Rank()
}

// ParseAccessLevel validates and normalizes a stored level string.
func ParseAccessLevel(raw string) (AccessLevel, error) {
	switch AccessLevel(raw) {
	case LevelRead, LevelReadWrite, LevelFull:
		return AccessLevel(raw), nil
	default:
		return LevelNone, fmt.Errorf("%w: unknown access level %q", ErrInvalidState, raw)
	}
}

// maxLevel returns the stronger of two levels.
func maxLevel(a, b AccessLevel) AccessLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Classification kinds for a sharing rule's owner ("share-from") side.
const (
	FromAllOwners = "all_owners"
	FromProfile   = "profile"
	FromTeam      = "team"
)

// Classification kinds for a sharing rule's recipient ("share-to") side.
const (
	ToProfile  = "profile"
	ToTeam     = "team"
	ToEveryone = "everyone"
)

// SharingRule is an always-on declarative grant: records of ResourceType
// owned by the FromKind classification are visible at Level to the ToKind
// classification. Rules carry no record-specific state.
type SharingRule struct {
	ID           int64       `json:"id"`
	Name         string      `json:"name"`
	ResourceType string      `json:"resource_type"`
	FromKind     string      `json:"from_kind"`
	FromProfile  string      `json:"from_profile,omitempty"`
	FromTeamID   *int64      `json:"from_team_id,omitempty"`
	ToKind       string      `json:"to_kind"`
	ToProfile    string      `json:"to_profile,omitempty"`
	ToTeamID     *int64      `json:"to_team_id,omitempty"`
	Level        AccessLevel `json:"level"`
	IsActive     bool        `json:"is_active"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	CreatedBy    *int64      `json:"created_by,omitempty"`
}

// Validate checks the structural invariants of a rule.
func (r *SharingRule) Validate() error {
	if r.ResourceType == "" {
		return fmt.Errorf("%w: sharing rule requires a resource type", ErrInvalidState)
	}
	if _, err := ParseAccessLevel(string(r.Level)); err != nil {
		return err
	}

	switch r.FromKind {
	case FromAllOwners:
		if r.FromProfile != "" || r.FromTeamID != nil {
			return fmt.Errorf("%w: all_owners rule must not name a profile or team", ErrInvalidState)
		}
	case FromProfile:
		if r.FromProfile == "" {
			return fmt.Errorf("%w: profile-classified rule requires a profile name", ErrInvalidState)
		}
	case FromTeam:
		if r.FromTeamID == nil {
			return fmt.Errorf("%w: team-classified rule requires a team id", ErrInvalidState)
		}
	default:
		return fmt.Errorf("%w: unknown share-from kind %q", ErrInvalidState, r.FromKind)
	}

	switch r.ToKind {
	case ToEveryone:
		if r.ToProfile != "" || r.ToTeamID != nil {
			return fmt.Errorf("%w: everyone rule must not name a profile or team", ErrInvalidState)
		}
	case ToProfile:
		if r.ToProfile == "" {
			return fmt.Errorf("%w: profile-targeted rule requires a profile name", ErrInvalidState)
		}
	case ToTeam:
		if r.ToTeamID == nil {
			return fmt.Errorf("%w: team-targeted rule requires a team id", ErrInvalidState)
		}
	default:
		return fmt.Errorf("%w: unknown share-to kind %q", ErrInvalidState, r.ToKind)
	}
	return nil
}

// RecordShare is an ad-hoc grant on one concrete record, targeting exactly
// one of a user or a team. Expired shares are kept but stop contributing;
// there is no physical cleanup.
type RecordShare struct {
	ID           int64       `json:"id"`
	ResourceType string      `json:"resource_type"`
	RecordID     string      `json:"record_id"`
	UserID       *int64      `json:"user_id,omitempty"`
	TeamID       *int64      `json:"team_id,omitempty"`
	Level        AccessLevel `json:"level"`
	GrantedBy    int64       `json:"granted_by"`
	Reason       string      `json:"reason,omitempty"`
	ExpiresAt    *time.Time  `json:"expires_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Validate rejects malformed shares at write time; resolution never has to
// guess about rows with zero or two targets.
func (s *RecordShare) Validate() error {
	if s.ResourceType == "" || s.RecordID == "" {
		return fmt.Errorf("%w: record share requires a resource type and record id", ErrInvalidState)
	}
	if _, err := ParseAccessLevel(string(s.Level)); err != nil {
		return err
	}
	if (s.UserID == nil) == (s.TeamID == nil) {
		return fmt.Errorf("%w: record share must target exactly one of user or team", ErrInvalidState)
	}
	return nil
}

// Effective reports whether the share contributes at the given instant.
func (s *RecordShare) Effective(at time.Time) bool {
	return s.ExpiresAt == nil || s.ExpiresAt.After(at)
}

// RecordRef identifies a registered record and its recorded owner. Ownership
// metadata is written by the document CRUD layer; resolution only reads it.
type RecordRef struct {
	ResourceType string     `json:"resource_type"`
	RecordID     string     `json:"record_id"`
	OwnerID      *int64     `json:"owner_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
