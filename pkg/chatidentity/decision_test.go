package chatidentity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	userID := int64(42)
	linked := &Identity{ExternalID: "U1", WorkspaceID: "W1", UserID: &userID}
	unlinked := &Identity{ExternalID: "U2", WorkspaceID: "W1"}

	tests := []struct {
		name       string
		identity   *Identity
		user       UserStatus
		strict     bool
		wantAllow  bool
		wantReason Reason
		wantState  LinkState
	}{
		{
			name:      "unknown sender in open mode",
			identity:  nil,
			wantAllow: true, wantReason: ReasonOpenAccess, wantState: StateUnknown,
		},
		{
			name:     "unknown sender in strict mode",
			identity: nil, strict: true,
			wantAllow: false, wantReason: ReasonUnknownUser, wantState: StateUnknown,
		},
		{
			name:      "unlinked sender in open mode",
			identity:  unlinked,
			wantAllow: true, wantReason: ReasonOpenAccess, wantState: StateUnlinked,
		},
		{
			name:     "unlinked sender in strict mode",
			identity: unlinked, strict: true,
			wantAllow: false, wantReason: ReasonNotLinked, wantState: StateUnlinked,
		},
		{
			name:     "linked to active user",
			identity: linked, user: UserStatus{Exists: true, Active: true},
			wantAllow: true, wantReason: ReasonLinkedActive, wantState: StateLinkedActive,
		},
		{
			name:     "linked to active user in strict mode",
			identity: linked, user: UserStatus{Exists: true, Active: true}, strict: true,
			wantAllow: true, wantReason: ReasonLinkedActive, wantState: StateLinkedActive,
		},
		{
			name:     "linked to deactivated user denies in open mode too",
			identity: linked, user: UserStatus{Exists: true, Active: false},
			wantAllow: false, wantReason: ReasonUserInactive, wantState: StateLinkedInactive,
		},
		{
			name:     "dangling user reference reads as inactive",
			identity: linked, user: UserStatus{Exists: false},
			wantAllow: false, wantReason: ReasonUserInactive, wantState: StateLinkedInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.identity, tt.user, tt.strict)
			assert.Equal(t, tt.wantAllow, d.Allowed)
			assert.Equal(t, tt.wantReason, d.Reason)
			assert.Equal(t, tt.wantState, d.State)
		})
	}
}

func TestDecide_BlockedDominatesEverything(t *testing.T) {
	userID := int64(42)

	blockedLinked := &Identity{UserID: &userID, Blocked: true}
	blockedUnlinked := &Identity{Blocked: true}

	for _, strict := range []bool{false, true} {
		d := Decide(blockedLinked, UserStatus{Exists: true, Active: true}, strict)
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonBlocked, d.Reason)
		assert.Equal(t, StateLinkedActive, d.State, "block is an independent axis, not a link state")

		d = Decide(blockedUnlinked, UserStatus{}, strict)
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonBlocked, d.Reason)
		assert.Equal(t, StateUnlinked, d.State)
	}
}
