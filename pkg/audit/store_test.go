package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Search(t *testing.T) {
	ctx := context.Background()
	actorID := int64(123)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	rows := sqlmock.NewRows([]string{
		"id", "timestamp", "event_type", "status",
		"actor_id", "actor_name",
		"resource_type", "resource_id",
		"request_id", "ip_address", "message", "metadata", "changes",
	}).AddRow(
		int64(1), time.Now().UTC(), string(EventTypeAuthzDenied), string(EventStatusDenied),
		actorID, "amira",
		"proposals", "P-42",
		"", "", "missing read scope", `{"action":"read"}`, `{"before":{"level":"read"},"after":{"level":"full"}}`,
	)

	mock.ExpectQuery("SELECT (.+) FROM audit_logs").
		WithArgs(actorID, 10, 0).
		WillReturnRows(rows)

	events, err := store.Search(ctx, SearchFilter{
		ActorID: &actorID,
		Limit:   10,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].ID)
	assert.Equal(t, EventTypeAuthzDenied, events[0].EventType)
	require.NotNil(t, events[0].ActorID)
	assert.Equal(t, actorID, *events[0].ActorID)
	assert.Equal(t, "read", events[0].Metadata["action"])
	require.NotNil(t, events[0].Changes)
	assert.Equal(t, "read", events[0].Changes.Before["level"])
	assert.Equal(t, "full", events[0].Changes.After["level"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Search_EventTypesFilter(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectQuery(`SELECT (.+) FROM audit_logs WHERE event_type = ANY\(\$1\)`).
		WithArgs(pq.Array([]string{string(EventTypeShareCreate), string(EventTypeShareRevoke)}), 100, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "timestamp", "event_type", "status",
			"actor_id", "actor_name",
			"resource_type", "resource_id",
			"request_id", "ip_address", "message", "metadata",
		}))

	events, err := store.Search(ctx, SearchFilter{
		EventTypes: []EventType{EventTypeShareCreate, EventTypeShareRevoke},
	})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Search_DefaultLimit(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	emptyRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{
			"id", "timestamp", "event_type", "status",
			"actor_id", "actor_name",
			"resource_type", "resource_id",
			"request_id", "ip_address", "message", "metadata",
		})
	}

	// Zero and oversized limits both clamp back to the default of 100.
	mock.ExpectQuery("SELECT (.+) FROM audit_logs").WithArgs(100, 0).WillReturnRows(emptyRows())
	mock.ExpectQuery("SELECT (.+) FROM audit_logs").WithArgs(100, 0).WillReturnRows(emptyRows())

	_, err = store.Search(ctx, SearchFilter{})
	require.NoError(t, err)
	_, err = store.Search(ctx, SearchFilter{Limit: 5000})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Search_Error(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectQuery("SELECT (.+) FROM audit_logs").WillReturnError(errors.New("database error"))

	events, err := store.Search(ctx, SearchFilter{Limit: 10})
	assert.Error(t, err)
	assert.Nil(t, events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Purge(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	cutoff := now.AddDate(0, 0, -90)
	mock.ExpectExec("DELETE FROM audit_logs").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 37))

	purged, err := store.Purge(ctx, RetentionPolicy{RetentionDays: 90}, now)
	require.NoError(t, err)
	assert.Equal(t, int64(37), purged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Purge_DisabledRetention(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	// No retention window means nothing is deleted and the DB is never touched.
	purged, err := store.Purge(context.Background(), RetentionPolicy{RetentionDays: 0}, time.Now())
	require.NoError(t, err)
	assert.Zero(t, purged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBSink_Log(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sink, err := NewDBSink(db)
	require.NoError(t, err)

	mock.ExpectQuery("INSERT INTO audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))

	event := &Event{
		Timestamp: time.Now().UTC(),
		EventType: EventTypeIdentityLink,
		Status:    EventStatusSuccess,
		Metadata:  map[string]any{"workspace_id": "W-1"},
		Changes: &ChangeDetails{
			Before: map[string]any{"user_id": nil},
			After:  map[string]any{"user_id": 7},
		},
	}
	require.NoError(t, sink.Log(ctx, event))
	assert.Equal(t, int64(9), event.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewDBSink_RequiresDB(t *testing.T) {
	sink, err := NewDBSink(nil)
	assert.Error(t, err)
	assert.Nil(t, sink)
}
