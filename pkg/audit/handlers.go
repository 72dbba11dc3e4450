package audit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/dealdesk/pkg/httputil"
)

// Handlers provides the audit log HTTP API.
type Handlers struct {
	store *Store
}

// NewHandlers creates audit handlers.
func NewHandlers(store *Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers audit log routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit/events", h.listEvents).Methods("GET")
}

func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	events, err := h.store.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func parseFilter(r *http.Request) (SearchFilter, error) {
	var filter SearchFilter

	if startStr := r.URL.Query().Get("start_time"); startStr != "" {
		t, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			return filter, err
		}
		filter.StartTime = &t
	}
	if endStr := r.URL.Query().Get("end_time"); endStr != "" {
		t, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			return filter, err
		}
		filter.EndTime = &t
	}
	if actorStr := r.URL.Query().Get("actor_id"); actorStr != "" {
		id, err := strconv.ParseInt(actorStr, 10, 64)
		if err != nil {
			return filter, err
		}
		filter.ActorID = &id
	}
	if typesStr := r.URL.Query().Get("event_types"); typesStr != "" {
		for _, t := range strings.Split(typesStr, ",") {
			filter.EventTypes = append(filter.EventTypes, EventType(strings.TrimSpace(t)))
		}
	}
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		status := EventStatus(statusStr)
		filter.Status = &status
	}
	filter.ResourceType = r.URL.Query().Get("resource_type")
	filter.ResourceID = r.URL.Query().Get("resource_id")

	var err error
	filter.Limit, filter.Offset, err = httputil.ParsePagination(r)
	return filter, err
}
