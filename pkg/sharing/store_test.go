package sharing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateRule_ChecksReferences(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)
	insertUserWithProfile(t, db, "sales:manager")

	t.Run("unknown profile rejected", func(t *testing.T) {
		err := store.CreateRule(ctx, &SharingRule{
			Name:         "bad",
			ResourceType: "proposals",
			FromKind:     FromAllOwners,
			ToKind:       ToProfile,
			ToProfile:    "ghost-profile",
			Level:        LevelRead,
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown team rejected", func(t *testing.T) {
		ghost := int64(999)
		err := store.CreateRule(ctx, &SharingRule{
			Name:         "bad",
			ResourceType: "proposals",
			FromKind:     FromAllOwners,
			ToKind:       ToTeam,
			ToTeamID:     &ghost,
			Level:        LevelRead,
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("known references accepted", func(t *testing.T) {
		rule := &SharingRule{
			Name:         "ok",
			ResourceType: "proposals",
			FromKind:     FromAllOwners,
			ToKind:       ToProfile,
			ToProfile:    "sales:manager",
			Level:        LevelRead,
			IsActive:     true,
		}
		require.NoError(t, store.CreateRule(ctx, rule))
		assert.NotZero(t, rule.ID)

		got, err := store.GetRule(ctx, rule.ID)
		require.NoError(t, err)
		assert.Equal(t, "sales:manager", got.ToProfile)
		assert.True(t, got.IsActive)
	})
}

func TestStore_RuleLifecycle(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	rule := &SharingRule{
		Name:         "visible",
		ResourceType: "bookings",
		FromKind:     FromAllOwners,
		ToKind:       ToEveryone,
		Level:        LevelRead,
		IsActive:     true,
	}
	require.NoError(t, store.CreateRule(ctx, rule))

	active, err := store.ActiveRules(ctx, "bookings")
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, store.SetRuleActive(ctx, rule.ID, false))

	active, err = store.ActiveRules(ctx, "bookings")
	require.NoError(t, err)
	assert.Empty(t, active)

	// Inactive rules still show up in administrative listings.
	all, err := store.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, store.DeleteRule(ctx, rule.ID))
	assert.ErrorIs(t, store.DeleteRule(ctx, rule.ID), ErrNotFound)
	assert.ErrorIs(t, store.SetRuleActive(ctx, rule.ID, true), ErrNotFound)
}

func TestStore_ShareLifecycle(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)
	now := time.Now().UTC()

	owner := insertUserWithProfile(t, db, "sales:rep")
	grantee := insertUserWithProfile(t, db, "viewer")

	t.Run("unknown user rejected", func(t *testing.T) {
		ghost := int64(999)
		err := store.CreateShare(ctx, &RecordShare{
			ResourceType: "proposals", RecordID: "P-1",
			UserID: &ghost, Level: LevelRead, GrantedBy: owner,
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	expired := now.Add(-time.Hour)
	live := now.Add(time.Hour)

	old := &RecordShare{
		ResourceType: "proposals", RecordID: "P-1",
		UserID: &grantee, Level: LevelRead, GrantedBy: owner, ExpiresAt: &expired,
	}
	require.NoError(t, store.CreateShare(ctx, old))

	current := &RecordShare{
		ResourceType: "proposals", RecordID: "P-1",
		UserID: &grantee, Level: LevelReadWrite, GrantedBy: owner, ExpiresAt: &live,
	}
	require.NoError(t, store.CreateShare(ctx, current))

	// Resolution only sees the live share.
	liveShares, err := store.LiveShares(ctx, "proposals", "P-1", now)
	require.NoError(t, err)
	require.Len(t, liveShares, 1)
	assert.Equal(t, current.ID, liveShares[0].ID)

	// Administrative listings keep the expired row for history.
	all, err := store.ListSharesForRecord(ctx, "proposals", "P-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, store.RevokeShare(ctx, current.ID))
	assert.ErrorIs(t, store.RevokeShare(ctx, current.ID), ErrNotFound)
}

func TestStore_RegisterRecordUpserts(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	first := insertUserWithProfile(t, db, "sales:rep")
	second := insertUserWithProfile(t, db, "sales:rep")

	registerRecord(t, store, "proposals", "P-1", &first)

	owner, err := store.RecordOwner(ctx, "proposals", "P-1")
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, first, *owner)

	// Re-registering reassigns ownership in place.
	registerRecord(t, store, "proposals", "P-1", &second)

	owner, err = store.RecordOwner(ctx, "proposals", "P-1")
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, second, *owner)

	// Clearing the owner leaves the record registered but ownerless.
	registerRecord(t, store, "proposals", "P-1", nil)

	owner, err = store.RecordOwner(ctx, "proposals", "P-1")
	require.NoError(t, err)
	assert.Nil(t, owner)
}

func TestStore_ProfileNameOf(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	withProfile := insertUserWithProfile(t, db, "sales:rep")
	withoutProfile := insertUserWithProfile(t, db, "")

	name, err := store.ProfileNameOf(ctx, withProfile)
	require.NoError(t, err)
	assert.Equal(t, "sales:rep", name)

	name, err = store.ProfileNameOf(ctx, withoutProfile)
	require.NoError(t, err)
	assert.Empty(t, name)

	_, err = store.ProfileNameOf(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}
