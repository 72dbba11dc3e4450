package tenancy

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for testing
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE companies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			parent_id INTEGER,
			kind TEXT NOT NULL,
			partition_key TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		);

		CREATE TABLE user_companies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			company_id INTEGER NOT NULL,
			added_by INTEGER,
			added_at TIMESTAMP
		);
	`)
	require.NoError(t, err)

	return db
}

func createCompany(t *testing.T, store *Store, c Company) *Company {
	t.Helper()
	require.NoError(t, store.CreateCompany(context.Background(), &c))
	return &c
}

func TestStore_CompanyCRUD(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	group := createCompany(t, store, Company{Name: "mmg", DisplayName: "Multimedia Group", Kind: KindGroup})
	leaf := createCompany(t, store, Company{
		Name: "viola", DisplayName: "Viola Communications",
		ParentID: &group.ID, Kind: KindLeaf, PartitionKey: "viola",
	})

	got, err := store.GetCompany(ctx, leaf.ID)
	require.NoError(t, err)
	assert.Equal(t, "viola", got.PartitionKey)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, group.ID, *got.ParentID)

	got.DisplayName = "Viola Communications LLC"
	require.NoError(t, store.UpdateCompany(ctx, got))

	updated, err := store.GetCompany(ctx, leaf.ID)
	require.NoError(t, err)
	assert.Equal(t, "Viola Communications LLC", updated.DisplayName)

	companies, err := store.ListCompanies(ctx)
	require.NoError(t, err)
	assert.Len(t, companies, 2)
}

func TestStore_CreateCompany_Validation(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	t.Run("group with partition key", func(t *testing.T) {
		err := store.CreateCompany(ctx, &Company{Name: "bad", Kind: KindGroup, PartitionKey: "nope"})
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("leaf without partition key", func(t *testing.T) {
		err := store.CreateCompany(ctx, &Company{Name: "bad", Kind: KindLeaf})
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("unknown parent", func(t *testing.T) {
		parent := int64(999)
		err := store.CreateCompany(ctx, &Company{Name: "orphan", Kind: KindGroup, ParentID: &parent})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("duplicate partition key", func(t *testing.T) {
		createCompany(t, store, Company{Name: "first", Kind: KindLeaf, PartitionKey: "shared"})
		err := store.CreateCompany(ctx, &Company{Name: "second", Kind: KindLeaf, PartitionKey: "shared"})
		assert.ErrorIs(t, err, ErrConflict)
	})
}

func TestStore_UpdateCompany_ImmutableFields(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	leaf := createCompany(t, store, Company{Name: "viola", Kind: KindLeaf, PartitionKey: "viola"})

	mutated := *leaf
	mutated.PartitionKey = "viola-2"
	assert.ErrorIs(t, store.UpdateCompany(ctx, &mutated), ErrInvalidState)

	mutated = *leaf
	mutated.ParentID = &leaf.ID
	assert.ErrorIs(t, store.UpdateCompany(ctx, &mutated), ErrInvalidState)
}

func TestStore_DeleteCompany_Guards(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	group := createCompany(t, store, Company{Name: "mmg", Kind: KindGroup})
	leaf := createCompany(t, store, Company{Name: "viola", ParentID: &group.ID, Kind: KindLeaf, PartitionKey: "viola"})

	// Parent with children cannot be removed.
	assert.ErrorIs(t, store.DeleteCompany(ctx, group.ID), ErrConflict)

	// Neither can a unit with assigned users.
	require.NoError(t, store.AssignUser(ctx, &Assignment{UserID: 10, CompanyID: leaf.ID}))
	assert.ErrorIs(t, store.DeleteCompany(ctx, leaf.ID), ErrConflict)

	require.NoError(t, store.UnassignUser(ctx, 10, leaf.ID))
	require.NoError(t, store.DeleteCompany(ctx, leaf.ID))
	require.NoError(t, store.DeleteCompany(ctx, group.ID))
}

func TestStore_Assignments(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	leaf := createCompany(t, store, Company{Name: "viola", Kind: KindLeaf, PartitionKey: "viola"})

	first := &Assignment{UserID: 10, CompanyID: leaf.ID}
	require.NoError(t, store.AssignUser(ctx, first))
	assert.NotZero(t, first.ID)

	// Re-assigning is a no-op that reports the existing row.
	second := &Assignment{UserID: 10, CompanyID: leaf.ID}
	require.NoError(t, store.AssignUser(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	ids, err := store.AssignedCompanyIDs(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{leaf.ID}, ids)

	userIDs, err := store.AssignedUsers(ctx, leaf.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, userIDs)

	err = store.AssignUser(ctx, &Assignment{UserID: 10, CompanyID: 999})
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.UnassignUser(ctx, 10, 999)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStore_TreeRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	group := createCompany(t, store, Company{Name: "mmg", Kind: KindGroup})
	leaf := createCompany(t, store, Company{Name: "viola", ParentID: &group.ID, Kind: KindLeaf, PartitionKey: "viola"})

	tree, err := store.Tree(ctx)
	require.NoError(t, err)
	require.Len(t, tree.Nodes, 2)
	assert.Equal(t, []int64{leaf.ID}, tree.Children[group.ID])

	resolver := NewResolver(store, store)
	keys, err := resolver.AccessibleLeafUnits(ctx, []int64{group.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"viola"}, keys)
}
