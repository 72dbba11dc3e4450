package sharing

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

	resolver := NewResolver(db, stubPerms{}, stubTeams{}, nil)
	metrics := observability.NewMetrics(nil)
	sink := &recordingSink{}

	router := mux.NewRouter()
	NewHandlers(resolver, metrics, audit.NewEmitter(sink, nil)).RegisterRoutes(router)
	return router, resolver, metrics, sink
}

func TestHandlers_CheckAccess_ObservesOutcome(t *testing.T) {
	router, resolver, metrics, _ := setupHandlers(t)

	owner := insertUserWithProfile(t, resolver.Store().db, "rep")
	stranger := insertUserWithProfile(t, resolver.Store().db, "rep")
	registerRecord(t, resolver.Store(), "proposals", "P-1", &owner)

	check := func(userID int64) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet,
			"/records/proposals/P-1/access?user_id="+strconv.FormatInt(userID, 10)+"&level=read", nil)
		router.ServeHTTP(w, r)
		return w
	}

	w := check(owner)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"allowed":true`)

	w = check(stranger)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"allowed":false`)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RecordChecksTotal.WithLabelValues("proposals", "true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RecordChecksTotal.WithLabelValues("proposals", "false")))
}

func TestHandlers_ShareLifecycle_AuditsChanges(t *testing.T) {
	router, resolver, _, sink := setupHandlers(t)

	grantee := insertUserWithProfile(t, resolver.Store().db, "rep")
	registerRecord(t, resolver.Store(), "proposals", "P-1", nil)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/records/proposals/P-1/shares",
		strings.NewReader(`{"user_id": `+strconv.FormatInt(grantee, 10)+`, "level": "read_write", "granted_by": `+strconv.FormatInt(grantee, 10)+`}`))
	router.ServeHTTP(w, r)
	require.Equal(t, http.StatusCreated, w.Code)

	created := sink.byType(audit.EventTypeShareCreate)
	require.NotNil(t, created)
	require.NotNil(t, created.Changes)
	assert.Equal(t, LevelReadWrite, created.Changes.After["level"])
	granteePtr, ok := created.Changes.After["user_id"].(*int64)
	require.True(t, ok)
	require.NotNil(t, granteePtr)
	assert.Equal(t, grantee, *granteePtr)

	shareID := created.Changes.After["share_id"].(int64)
	require.NotZero(t, shareID)

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodDelete,
		"/records/proposals/P-1/shares/"+strconv.FormatInt(shareID, 10), nil)
	router.ServeHTTP(w, r)
	require.Equal(t, http.StatusNoContent, w.Code)

	revoked := sink.byType(audit.EventTypeShareRevoke)
	require.NotNil(t, revoked)
	require.NotNil(t, revoked.Changes)
	assert.Equal(t, shareID, revoked.Changes.Before["share_id"])
	assert.Equal(t, LevelReadWrite, revoked.Changes.Before["level"])
}
