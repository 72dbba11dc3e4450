package chatidentity

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/dealdesk/pkg/audit"
	"github.com/platinummonkey/dealdesk/pkg/httputil"
	"github.com/platinummonkey/dealdesk/pkg/middleware"
	"github.com/platinummonkey/dealdesk/pkg/observability"
)

// Handlers provides the chat identity HTTP API.
type Handlers struct {
	service *Service
	metrics *observability.Metrics
	auditor *audit.Emitter
}

// NewHandlers creates chat identity handlers. metrics may be nil.
func NewHandlers(service *Service, metrics *observability.Metrics, auditor *audit.Emitter) *Handlers {
	if auditor == nil {
		auditor = audit.NewEmitter(nil, nil)
	}
	return &Handlers{service: service, metrics: metrics, auditor: auditor}
}

// RegisterRoutes registers chat identity routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/chat/identities/{workspaceID}", h.list).Methods("GET")
	router.HandleFunc("/chat/identities/{workspaceID}/{externalID}", h.get).Methods("GET")
	router.HandleFunc("/chat/identities/{workspaceID}/{externalID}/interaction", h.recordInteraction).Methods("POST")
	router.HandleFunc("/chat/identities/{workspaceID}/{externalID}/link", h.link).Methods("PUT")
	router.HandleFunc("/chat/identities/{workspaceID}/{externalID}/link", h.unlink).Methods("DELETE")
	router.HandleFunc("/chat/identities/{workspaceID}/{externalID}/blocked", h.setBlocked).Methods("PUT")
	router.HandleFunc("/chat/identities/{workspaceID}/{externalID}/authorize", h.authorize).Methods("GET")

	router.HandleFunc("/chat/settings/strict-mode", h.getStrictMode).Methods("GET")
	router.HandleFunc("/chat/settings/strict-mode", h.setStrictMode).Methods("PUT")
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	httputil.WriteSentinelError(w, err, ErrNotFound, ErrConflict, ErrInvalidState)
}

func actorID(r *http.Request) *int64 {
	if authCtx := middleware.AuthFromContext(r); authCtx != nil {
		id := authCtx.UserID
		return &id
	}
	return nil
}

func pathIdentity(w http.ResponseWriter, r *http.Request) (externalID, workspaceID string, ok bool) {
	workspaceID, ok = httputil.ParsePathStringOrError(w, r, "workspaceID")
	if !ok {
		return "", "", false
	}
	externalID, ok = httputil.ParsePathStringOrError(w, r, "externalID")
	if !ok {
		return "", "", false
	}
	return externalID, workspaceID, true
}

func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := httputil.ParsePathStringOrError(w, r, "workspaceID")
	if !ok {
		return
	}
	limit, offset, err := httputil.ParsePagination(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	identities, err := h.service.store.List(r.Context(), workspaceID, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"identities": identities})
}

func (h *Handlers) get(w http.ResponseWriter, r *http.Request) {
	externalID, workspaceID, ok := pathIdentity(w, r)
	if !ok {
		return
	}
	identity, err := h.service.store.Require(r.Context(), externalID, workspaceID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, identity)
}

func (h *Handlers) recordInteraction(w http.ResponseWriter, r *http.Request) {
	externalID, workspaceID, ok := pathIdentity(w, r)
	if !ok {
		return
	}
	var snapshot Snapshot
	if !httputil.ParseJSONOrError(w, r, &snapshot) {
		return
	}
	at, err := httputil.ParseQueryTime(r, "at")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	identity, err := h.service.RecordInteraction(r.Context(), externalID, workspaceID, snapshot, at)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, identity)
}

func (h *Handlers) link(w http.ResponseWriter, r *http.Request) {
	externalID, workspaceID, ok := pathIdentity(w, r)
	if !ok {
		return
	}
	var req struct {
		UserID int64 `json:"user_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	at, err := httputil.ParseQueryTime(r, "at")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	before := map[string]any{"user_id": nil}
	if prior, err := h.service.store.Get(r.Context(), externalID, workspaceID); err == nil && prior != nil {
		before["user_id"] = prior.UserID
	}

	identity, err := h.service.Link(r.Context(), externalID, workspaceID, req.UserID, actorID(r), at)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.auditor.RecordChange(r.Context(), audit.EventTypeIdentityLink, actorID(r), "chat_identity", workspaceID+"/"+externalID,
		&audit.ChangeDetails{
			Before: before,
			After:  map[string]any{"user_id": req.UserID},
		}, fmt.Sprintf("user %d", req.UserID))
	httputil.WriteSuccess(w, identity)
}

func (h *Handlers) unlink(w http.ResponseWriter, r *http.Request) {
	externalID, workspaceID, ok := pathIdentity(w, r)
	if !ok {
		return
	}
	before := map[string]any{"user_id": nil}
	if prior, err := h.service.store.Get(r.Context(), externalID, workspaceID); err == nil && prior != nil {
		before["user_id"] = prior.UserID
	}

	identity, err := h.service.Unlink(r.Context(), externalID, workspaceID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.auditor.RecordChange(r.Context(), audit.EventTypeIdentityUnlink, actorID(r), "chat_identity", workspaceID+"/"+externalID,
		&audit.ChangeDetails{
			Before: before,
			After:  map[string]any{"user_id": nil},
		}, "")
	httputil.WriteSuccess(w, identity)
}

func (h *Handlers) setBlocked(w http.ResponseWriter, r *http.Request) {
	externalID, workspaceID, ok := pathIdentity(w, r)
	if !ok {
		return
	}
	var req struct {
		Blocked bool   `json:"blocked"`
		Reason  string `json:"reason,omitempty"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	before := map[string]any{}
	if prior, err := h.service.store.Get(r.Context(), externalID, workspaceID); err == nil && prior != nil {
		before["blocked"] = prior.Blocked
	}

	identity, err := h.service.SetBlocked(r.Context(), externalID, workspaceID, req.Blocked, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	eventType := audit.EventTypeIdentityUnblock
	if req.Blocked {
		eventType = audit.EventTypeIdentityBlock
	}
	h.auditor.RecordChange(r.Context(), eventType, actorID(r), "chat_identity", workspaceID+"/"+externalID,
		&audit.ChangeDetails{
			Before: before,
			After:  map[string]any{"blocked": req.Blocked, "reason": req.Reason},
		}, req.Reason)
	httputil.WriteSuccess(w, identity)
}

func (h *Handlers) authorize(w http.ResponseWriter, r *http.Request) {
	externalID, workspaceID, ok := pathIdentity(w, r)
	if !ok {
		return
	}
	decision, err := h.service.Authorize(r.Context(), externalID, workspaceID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveChatDecision(string(decision.Reason))
	}
	httputil.WriteSuccess(w, decision)
}

func (h *Handlers) getStrictMode(w http.ResponseWriter, r *http.Request) {
	enabled, err := h.service.StrictMode(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]bool{"strict_mode": enabled})
}

func (h *Handlers) setStrictMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	before := map[string]any{}
	if prior, err := h.service.StrictMode(r.Context()); err == nil {
		before["enabled"] = prior
	}

	if err := h.service.SetStrictMode(r.Context(), req.Enabled); err != nil {
		h.writeError(w, err)
		return
	}
	h.auditor.RecordChange(r.Context(), audit.EventTypeStrictModeSet, actorID(r), "setting", "chat_strict_mode",
		&audit.ChangeDetails{
			Before: before,
			After:  map[string]any{"enabled": req.Enabled},
		}, fmt.Sprintf("enabled=%t", req.Enabled))
	httputil.WriteNoContent(w)
}
