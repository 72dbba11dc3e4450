package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	var payload struct {
		Name string `json:"name"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"backlite"}`))
	require.NoError(t, ParseJSON(r, &payload))
	assert.Equal(t, "backlite", payload.Name)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{broken`))
	assert.Error(t, ParseJSON(r, &payload))
}

func TestParsePathInt64(t *testing.T) {
	r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/users/42", nil), map[string]string{"id": "42"})

	id, err := ParsePathInt64(r, "id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = ParsePathInt64(r, "missing")
	assert.Error(t, err)

	r = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/users/abc", nil), map[string]string{"id": "abc"})
	_, err = ParsePathInt64(r, "id")
	assert.Error(t, err)
}

func TestParseQueryTime(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?at=2024-06-01T08:30:00%2B04:00", nil)
	at, err := ParseQueryTime(r, "at")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 4, 30, 0, 0, time.UTC), at)
	assert.Equal(t, time.UTC, at.Location())

	before := time.Now().UTC()
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	at, err = ParseQueryTime(r, "at")
	require.NoError(t, err)
	assert.False(t, at.Before(before))

	r = httptest.NewRequest(http.MethodGet, "/?at=yesterday", nil)
	_, err = ParseQueryTime(r, "at")
	assert.Error(t, err)
}

func TestParsePagination(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=25&offset=50", nil)
	limit, offset, err := ParsePagination(r)
	require.NoError(t, err)
	assert.Equal(t, 25, limit)
	assert.Equal(t, 50, offset)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	limit, offset, err = ParsePagination(r)
	require.NoError(t, err)
	assert.Equal(t, 100, limit)
	assert.Equal(t, 0, offset)

	r = httptest.NewRequest(http.MethodGet, "/?limit=lots", nil)
	_, _, err = ParsePagination(r)
	assert.Error(t, err)
}

func TestWriteSentinelError(t *testing.T) {
	notFound := errors.New("not found")
	conflict := errors.New("conflict")
	invalidState := errors.New("invalid state")

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", notFound, http.StatusNotFound},
		{"wrapped not found", errors.Join(errors.New("user 7"), notFound), http.StatusNotFound},
		{"conflict", conflict, http.StatusConflict},
		{"invalid state", invalidState, http.StatusUnprocessableEntity},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteSentinelError(w, tt.err, notFound, conflict, invalidState)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

func TestWriteJSONHelpers(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteSuccess(w, map[string]bool{"ok": true}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	w = httptest.NewRecorder()
	require.NoError(t, WriteCreated(w, map[string]int64{"id": 7}))
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	WriteNoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
