package permissions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/dealdesk/pkg/audit"
	"github.com/platinummonkey/dealdesk/pkg/observability"
)

// recordingSink captures emitted audit events for assertions.
type recordingSink struct {
	events []*audit.Event
}

func (s *recordingSink) Log(ctx context.Context, event *audit.Event) error {
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) byType(eventType audit.EventType) *audit.Event {
	for _, e := range s.events {
		if e.EventType == eventType {
			return e
		}
	}
	return nil
}

func setupHandlers(t *testing.T) (*mux.Router, *Resolver, *observability.Metrics, *recordingSink) {
	t.Helper()

	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })

	resolver := NewResolver(db)
	metrics := observability.NewMetrics(nil)
	sink := &recordingSink{}

	router := mux.NewRouter()
	NewHandlers(resolver, DefaultCatalog(), metrics, audit.NewEmitter(sink, nil)).RegisterRoutes(router)
	return router, resolver, metrics, sink
}

func TestHandlers_CheckAuthorization_ObservesOutcome(t *testing.T) {
	router, resolver, metrics, _ := setupHandlers(t)

	profile := createProfile(t, resolver.Store(), "rep", NewScope("sales", "proposals", "read"))
	userID := insertUser(t, resolver.Store().db, "rep@example.com", true, &profile.ID)

	check := func(scope string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet,
			"/authz/check?user_id="+strconv.FormatInt(userID, 10)+"&scope="+scope, nil)
		router.ServeHTTP(w, r)
		return w
	}

	w := check("sales:proposals:read")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"allowed":true`)

	w = check("sales:proposals:delete")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"allowed":false`)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuthzChecksTotal.WithLabelValues("true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuthzChecksTotal.WithLabelValues("false")))
}

func TestHandlers_AssignProfile_AuditsBeforeAndAfter(t *testing.T) {
	router, resolver, _, sink := setupHandlers(t)

	oldProfile := createProfile(t, resolver.Store(), "viewer", NewScope("sales", "proposals", "read"))
	newProfile := createProfile(t, resolver.Store(), "manager", NewScope("sales", "proposals", "manage"))
	userID := insertUser(t, resolver.Store().db, "amira@example.com", true, &oldProfile.ID)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPut,
		"/users/"+strconv.FormatInt(userID, 10)+"/profile",
		strings.NewReader(`{"profile_id": `+strconv.FormatInt(newProfile.ID, 10)+`}`))
	router.ServeHTTP(w, r)
	require.Equal(t, http.StatusNoContent, w.Code)

	event := sink.byType(audit.EventTypeProfileAssign)
	require.NotNil(t, event)
	require.NotNil(t, event.Changes)
	before, ok := event.Changes.Before["profile_id"].(*int64)
	require.True(t, ok)
	require.NotNil(t, before)
	assert.Equal(t, oldProfile.ID, *before)
	assert.Equal(t, newProfile.ID, event.Changes.After["profile_id"])
}

func TestHandlers_RevokeSet_AuditsRevokedGrant(t *testing.T) {
	router, resolver, _, sink := setupHandlers(t)

	userID := insertUser(t, resolver.Store().db, "amira@example.com", true, nil)

	set := &PermissionSet{Name: "exports", DisplayName: "exports",
		Scopes: []Scope{NewScope("sales", "proposals", "export")}}
	require.NoError(t, resolver.Store().CreatePermissionSet(context.Background(), set))
	assignment := &SetAssignment{SetID: set.ID, UserID: userID}
	require.NoError(t, resolver.Store().AssignSet(context.Background(), assignment))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodDelete,
		"/users/"+strconv.FormatInt(userID, 10)+"/permission-sets/"+strconv.FormatInt(assignment.ID, 10), nil)
	router.ServeHTTP(w, r)
	require.Equal(t, http.StatusNoContent, w.Code)

	event := sink.byType(audit.EventTypeSetRevoke)
	require.NotNil(t, event)
	require.NotNil(t, event.Changes)
	assert.Equal(t, assignment.ID, event.Changes.Before["assignment_id"])
	assert.Equal(t, set.ID, event.Changes.Before["set_id"])
}
