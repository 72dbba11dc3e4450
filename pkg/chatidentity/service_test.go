package chatidentity

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for testing
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1
		);

		CREATE TABLE chat_identities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			external_id TEXT NOT NULL,
			workspace_id TEXT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			user_id INTEGER,
			linked_by INTEGER,
			linked_at TIMESTAMP,
			blocked INTEGER NOT NULL DEFAULT 0,
			block_reason TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			first_seen_at TIMESTAMP NOT NULL,
			last_seen_at TIMESTAMP NOT NULL,
			UNIQUE (external_id, workspace_id)
		);

		CREATE TABLE app_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	require.NoError(t, err)

	return db
}

func newService(t *testing.T, db *sql.DB) *Service {
	t.Helper()
	return NewService(NewStore(db), NewSettingsStore(db))
}

func insertPlatformUser(t *testing.T, db *sql.DB, email string, active bool) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO users (email, is_active) VALUES ($1, $2)`, email, active)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func TestService_RecordInteraction(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := newService(t, db)
	now := time.Now().UTC()

	identity, err := svc.RecordInteraction(ctx, "U100", "W1", Snapshot{Username: "amira", Email: "amira@example.com"}, now)
	require.NoError(t, err)
	assert.Equal(t, "amira", identity.Username)
	assert.False(t, identity.Linked())
	assert.False(t, identity.Blocked)

	// A later interaction with a partial snapshot keeps earlier fields.
	later := now.Add(time.Minute)
	identity, err = svc.RecordInteraction(ctx, "U100", "W1", Snapshot{DisplayName: "Amira K"}, later)
	require.NoError(t, err)
	assert.Equal(t, "amira", identity.Username)
	assert.Equal(t, "amira@example.com", identity.Email)
	assert.Equal(t, "Amira K", identity.DisplayName)
	assert.True(t, identity.LastSeenAt.After(identity.FirstSeenAt))

	_, err = svc.RecordInteraction(ctx, "", "W1", Snapshot{}, now)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestService_LinkUnlinkRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := newService(t, db)
	now := time.Now().UTC()

	userID := insertPlatformUser(t, db, "amira@example.com", true)
	_, err := svc.RecordInteraction(ctx, "U100", "W1", Snapshot{Username: "amira"}, now)
	require.NoError(t, err)

	identity, err := svc.Link(ctx, "U100", "W1", userID, nil, now)
	require.NoError(t, err)
	require.NotNil(t, identity.UserID)
	assert.Equal(t, userID, *identity.UserID)

	// Re-linking to the same user is idempotent.
	_, err = svc.Link(ctx, "U100", "W1", userID, nil, now)
	require.NoError(t, err)

	identity, err = svc.Unlink(ctx, "U100", "W1")
	require.NoError(t, err)
	assert.Nil(t, identity.UserID)
	assert.Equal(t, "amira", identity.Username, "snapshot survives unlink")

	// Unlink then relink restores the same linkage.
	identity, err = svc.Link(ctx, "U100", "W1", userID, nil, now)
	require.NoError(t, err)
	assert.Equal(t, userID, *identity.UserID)
}

func TestService_LinkConflicts(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := newService(t, db)
	now := time.Now().UTC()

	alice := insertPlatformUser(t, db, "alice@example.com", true)
	bob := insertPlatformUser(t, db, "bob@example.com", true)

	_, err := svc.Link(ctx, "U200", "W1", alice, nil, now)
	require.NoError(t, err)

	// Linking to a different user without unlinking first is rejected.
	_, err = svc.Link(ctx, "U200", "W1", bob, nil, now)
	assert.ErrorIs(t, err, ErrConflict)

	// Linking to a nonexistent platform user is a caller error.
	_, err = svc.Link(ctx, "U201", "W1", 9999, nil, now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_LinkUnseenIdentityCreatesRow(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := newService(t, db)
	now := time.Now().UTC()

	userID := insertPlatformUser(t, db, "carol@example.com", true)

	identity, err := svc.Link(ctx, "U300", "W1", userID, &userID, now)
	require.NoError(t, err)
	assert.True(t, identity.Linked())
	assert.Equal(t, now.Unix(), identity.FirstSeenAt.Unix())
}

func TestService_Authorize(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := newService(t, db)
	now := time.Now().UTC()

	userID := insertPlatformUser(t, db, "amira@example.com", true)

	t.Run("open mode admits strangers", func(t *testing.T) {
		d, err := svc.Authorize(ctx, "stranger", "W1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, ReasonOpenAccess, d.Reason)
		assert.Equal(t, StateUnknown, d.State)
	})

	t.Run("strict mode denies strangers and unlinked", func(t *testing.T) {
		require.NoError(t, svc.SetStrictMode(ctx, true))
		defer func() { require.NoError(t, svc.SetStrictMode(ctx, false)) }()

		d, err := svc.Authorize(ctx, "stranger", "W1")
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonUnknownUser, d.Reason)

		_, err = svc.RecordInteraction(ctx, "U400", "W1", Snapshot{}, now)
		require.NoError(t, err)

		d, err = svc.Authorize(ctx, "U400", "W1")
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonNotLinked, d.Reason)

		// Linking flips the decision without leaving strict mode.
		_, err = svc.Link(ctx, "U400", "W1", userID, nil, now)
		require.NoError(t, err)

		d, err = svc.Authorize(ctx, "U400", "W1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, ReasonLinkedActive, d.Reason)
		require.NotNil(t, d.UserID)
		assert.Equal(t, userID, *d.UserID)
	})

	t.Run("deactivating the user denies the identity", func(t *testing.T) {
		_, err := db.Exec(`UPDATE users SET is_active = 0 WHERE id = $1`, userID)
		require.NoError(t, err)
		defer db.Exec(`UPDATE users SET is_active = 1 WHERE id = $1`, userID)

		d, err := svc.Authorize(ctx, "U400", "W1")
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonUserInactive, d.Reason)
		assert.Equal(t, StateLinkedInactive, d.State)
	})

	t.Run("blocked identity is denied regardless", func(t *testing.T) {
		_, err := svc.SetBlocked(ctx, "U400", "W1", true, "spam")
		require.NoError(t, err)

		d, err := svc.Authorize(ctx, "U400", "W1")
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonBlocked, d.Reason)

		identity, err := svc.SetBlocked(ctx, "U400", "W1", false, "")
		require.NoError(t, err)
		assert.False(t, identity.Blocked)
	})
}

func TestService_AutoLinkByEmail(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := newService(t, db)
	now := time.Now().UTC()

	active := insertPlatformUser(t, db, "match@example.com", true)
	insertPlatformUser(t, db, "inactive@example.com", false)

	// One identity matches an active user, one matches an inactive user,
	// one has no email on file, one matches but is blocked.
	_, err := svc.RecordInteraction(ctx, "U1", "W1", Snapshot{Email: "Match@Example.com"}, now)
	require.NoError(t, err)
	_, err = svc.RecordInteraction(ctx, "U2", "W1", Snapshot{Email: "inactive@example.com"}, now)
	require.NoError(t, err)
	_, err = svc.RecordInteraction(ctx, "U3", "W1", Snapshot{}, now)
	require.NoError(t, err)
	_, err = svc.RecordInteraction(ctx, "U4", "W1", Snapshot{Email: "match@example.com"}, now)
	require.NoError(t, err)
	_, err = svc.SetBlocked(ctx, "U4", "W1", true, "spam")
	require.NoError(t, err)

	linked, err := svc.AutoLinkByEmail(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, linked)

	identity, err := svc.Authorize(ctx, "U1", "W1")
	require.NoError(t, err)
	require.NotNil(t, identity.UserID)
	assert.Equal(t, active, *identity.UserID)

	d, err := svc.Authorize(ctx, "U2", "W1")
	require.NoError(t, err)
	assert.Nil(t, d.UserID, "identity matching an inactive user stays unlinked")

	d, err = svc.Authorize(ctx, "U4", "W1")
	require.NoError(t, err)
	assert.Nil(t, d.UserID, "blocked identity is skipped even when the email matches")

	// Running again links nothing new.
	linked, err = svc.AutoLinkByEmail(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, linked)
}

func TestSettingsStore_DefaultsToOpenAccess(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	settings := NewSettingsStore(db)

	strict, err := settings.StrictMode(ctx)
	require.NoError(t, err)
	assert.False(t, strict)

	require.NoError(t, settings.SetStrictMode(ctx, true))
	strict, err = settings.StrictMode(ctx)
	require.NoError(t, err)
	assert.True(t, strict)

	require.NoError(t, settings.SetStrictMode(ctx, false))
	strict, err = settings.StrictMode(ctx)
	require.NoError(t, err)
	assert.False(t, strict)
}
