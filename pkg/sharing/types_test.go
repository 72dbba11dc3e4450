package sharing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccessLevelOrdering(t *testing.T) {
	assert.True(t, LevelFull.Covers(LevelRead))
	assert.True(t, LevelFull.Covers(LevelReadWrite))
	assert.True(t, LevelReadWrite.Covers(LevelRead))
	assert.True(t, LevelRead.Covers(LevelRead))

	assert.False(t, LevelRead.Covers(LevelReadWrite))
	assert.False(t, LevelReadWrite.Covers(LevelFull))
	assert.False(t, LevelNone.Covers(LevelRead))

	// Every level satisfies a zero request.
	assert.True(t, LevelNone.Covers(LevelNone))
	assert.True(t, LevelRead.Covers(LevelNone))

	assert.Equal(t, LevelReadWrite, maxLevel(LevelRead, LevelReadWrite))
	assert.Equal(t, LevelFull, maxLevel(LevelFull, LevelRead))
}

func TestParseAccessLevel(t *testing.T) {
	for _, valid := range []string{"read", "read_write", "full"} {
		level, err := ParseAccessLevel(valid)
		assert.NoError(t, err)
		assert.Equal(t, AccessLevel(valid), level)
	}
	for _, invalid := range []string{"", "write", "READ", "admin"} {
		_, err := ParseAccessLevel(invalid)
		assert.ErrorIs(t, err, ErrInvalidState, "expected %q to be rejected", invalid)
	}
}

func TestSharingRuleValidate(t *testing.T) {
	teamID := int64(7)

	valid := SharingRule{
		Name:         "managers-see-everything",
		ResourceType: "proposals",
		FromKind:     FromAllOwners,
		ToKind:       ToProfile,
		ToProfile:    "sales:manager",
		Level:        LevelRead,
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*SharingRule)
	}{
		{"missing resource type", func(r *SharingRule) { r.ResourceType = "" }},
		{"bad level", func(r *SharingRule) { r.Level = "write" }},
		{"all_owners with profile", func(r *SharingRule) { r.FromProfile = "sales:rep" }},
		{"profile from without name", func(r *SharingRule) { r.FromKind = FromProfile }},
		{"team from without id", func(r *SharingRule) { r.FromKind = FromTeam }},
		{"unknown from kind", func(r *SharingRule) { r.FromKind = "cohort" }},
		{"everyone with team", func(r *SharingRule) { r.ToKind = ToEveryone; r.ToProfile = ""; r.ToTeamID = &teamID }},
		{"profile to without name", func(r *SharingRule) { r.ToProfile = "" }},
		{"team to without id", func(r *SharingRule) { r.ToKind = ToTeam; r.ToProfile = "" }},
		{"unknown to kind", func(r *SharingRule) { r.ToKind = "cohort" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := valid
			tt.mutate(&rule)
			assert.ErrorIs(t, rule.Validate(), ErrInvalidState)
		})
	}
}

func TestRecordShareValidate(t *testing.T) {
	userID := int64(10)
	teamID := int64(7)

	valid := RecordShare{
		ResourceType: "proposals",
		RecordID:     "P-1001",
		UserID:       &userID,
		Level:        LevelRead,
		GrantedBy:    1,
	}
	assert.NoError(t, valid.Validate())

	noTarget := valid
	noTarget.UserID = nil
	assert.ErrorIs(t, noTarget.Validate(), ErrInvalidState)

	bothTargets := valid
	bothTargets.TeamID = &teamID
	assert.ErrorIs(t, bothTargets.Validate(), ErrInvalidState)

	noRecord := valid
	noRecord.RecordID = ""
	assert.ErrorIs(t, noRecord.Validate(), ErrInvalidState)
}

func TestRecordShareEffective(t *testing.T) {
	now := time.Now().UTC()
	expiry := now.Add(time.Hour)

	permanent := RecordShare{}
	assert.True(t, permanent.Effective(now))
	assert.True(t, permanent.Effective(now.Add(1000*time.Hour)))

	expiring := RecordShare{ExpiresAt: &expiry}
	assert.True(t, expiring.Effective(now))
	assert.False(t, expiring.Effective(expiry), "a share expiring at the evaluation instant no longer contributes")
	assert.False(t, expiring.Effective(expiry.Add(time.Minute)))
}
