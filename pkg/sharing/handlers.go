package sharing

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/dealdesk/pkg/audit"
	"github.com/platinummonkey/dealdesk/pkg/httputil"
	"github.com/platinummonkey/dealdesk/pkg/middleware"
	"github.com/platinummonkey/dealdesk/pkg/observability"
)

// Handlers provides the sharing HTTP API.
type Handlers struct {
	resolver *Resolver
	metrics  *observability.Metrics
	auditor  *audit.Emitter
}

// NewHandlers creates sharing handlers. metrics may be nil.
func NewHandlers(resolver *Resolver, metrics *observability.Metrics, auditor *audit.Emitter) *Handlers {
	if auditor == nil {
		auditor = audit.NewEmitter(nil, nil)
	}
	return &Handlers{resolver: resolver, metrics: metrics, auditor: auditor}
}

// RegisterRoutes registers sharing routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/sharing-rules", h.listRules).Methods("GET")
	router.HandleFunc("/sharing-rules", h.createRule).Methods("POST")
	router.HandleFunc("/sharing-rules/{id}", h.getRule).Methods("GET")
	router.HandleFunc("/sharing-rules/{id}", h.deleteRule).Methods("DELETE")
	router.HandleFunc("/sharing-rules/{id}/active", h.setRuleActive).Methods("PUT")

	router.HandleFunc("/records/{resourceType}/{recordID}/shares", h.listShares).Methods("GET")
	router.HandleFunc("/records/{resourceType}/{recordID}/shares", h.createShare).Methods("POST")
	router.HandleFunc("/records/{resourceType}/{recordID}/shares/{shareID}", h.revokeShare).Methods("DELETE")
	router.HandleFunc("/records/{resourceType}/{recordID}/owner", h.registerRecord).Methods("PUT")
	router.HandleFunc("/records/{resourceType}/{recordID}/access", h.checkAccess).Methods("GET")
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

func (h *Handlers) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.resolver.Store().ListRules(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"rules": rules})
}

func (h *Handlers) createRule(w http.ResponseWriter, r *http.Request) {
	var rule SharingRule
	if !httputil.ParseJSONOrError(w, r, &rule) {
		return
	}
	rule.CreatedBy = actorID(r)

	if err := h.resolver.Store().CreateRule(r.Context(), &rule); err != nil {
		h.writeError(w, err)
		return
	}
	h.auditor.Record(r.Context(), audit.EventTypeRuleCreate, actorID(r), "sharing_rule", strconv.FormatInt(rule.ID, 10), rule.Name)
	httputil.WriteCreated(w, rule)
}

func (h *Handlers) getRule(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	rule, err := h.resolver.Store().GetRule(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, rule)
}

func (h *Handlers) deleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.resolver.Store().DeleteRule(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.auditor.Record(r.Context(), audit.EventTypeRuleDelete, actorID(r), "sharing_rule", strconv.FormatInt(id, 10), "")
	httputil.WriteNoContent(w)
}

func (h *Handlers) setRuleActive(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	prior, err := h.resolver.Store().GetRule(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.resolver.Store().SetRuleActive(r.Context(), id, req.Active); err != nil {
		h.writeError(w, err)
		return
	}
	h.auditor.RecordChange(r.Context(), audit.EventTypeRuleToggle, actorID(r), "sharing_rule", strconv.FormatInt(id, 10),
		&audit.ChangeDetails{
			Before: map[string]any{"active": prior.IsActive},
			After:  map[string]any{"active": req.Active},
		}, fmt.Sprintf("active=%t", req.Active))
	httputil.WriteNoContent(w)
}

func (h *Handlers) listShares(w http.ResponseWriter, r *http.Request) {
	resourceType, ok := httputil.ParsePathStringOrError(w, r, "resourceType")
	if !ok {
		return
	}
	recordID, ok := httputil.ParsePathStringOrError(w, r, "recordID")
	if !ok {
		return
	}
	shares, err := h.resolver.Store().ListSharesForRecord(r.Context(), resourceType, recordID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"shares": shares})
}

func (h *Handlers) createShare(w http.ResponseWriter, r *http.Request) {
	resourceType, ok := httputil.ParsePathStringOrError(w, r, "resourceType")
	if !ok {
		return
	}
	recordID, ok := httputil.ParsePathStringOrError(w, r, "recordID")
	if !ok {
		return
	}

	var share RecordShare
	if !httputil.ParseJSONOrError(w, r, &share) {
		return
	}
	share.ResourceType = resourceType
	share.RecordID = recordID

	at, err := httputil.ParseQueryTime(r, "at")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	// An authenticated granter must themselves hold at least the level
	// they are handing out.
	if granter := actorID(r); granter != nil {
		share.GrantedBy = *granter
		allowed, err := h.resolver.CanAccessRecord(r.Context(), *granter, resourceType, recordID, share.Level, at)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if !allowed {
			httputil.WriteForbidden(w, "granter lacks the access level being shared")
			return
		}
	}

	if err := h.resolver.Store().CreateShare(r.Context(), &share); err != nil {
		h.writeError(w, err)
		return
	}
	h.auditor.RecordChange(r.Context(), audit.EventTypeShareCreate, actorID(r), resourceType, recordID,
		&audit.ChangeDetails{
			After: map[string]any{
				"share_id":   share.ID,
				"user_id":    share.UserID,
				"team_id":    share.TeamID,
				"level":      share.Level,
				"expires_at": share.ExpiresAt,
			},
		}, "level "+string(share.Level))
	httputil.WriteCreated(w, share)
}

func (h *Handlers) revokeShare(w http.ResponseWriter, r *http.Request) {
	resourceType, ok := httputil.ParsePathStringOrError(w, r, "resourceType")
	if !ok {
		return
	}
	recordID, ok := httputil.ParsePathStringOrError(w, r, "recordID")
	if !ok {
		return
	}
	shareID, ok := httputil.ParsePathInt64OrError(w, r, "shareID")
	if !ok {
		return
	}
	before := map[string]any{"share_id": shareID}
	if prior, err := h.resolver.Store().GetShare(r.Context(), shareID); err == nil {
		before["user_id"] = prior.UserID
		before["team_id"] = prior.TeamID
		before["level"] = prior.Level
	}

	if err := h.resolver.Store().RevokeShare(r.Context(), shareID); err != nil {
		h.writeError(w, err)
		return
	}
	h.auditor.RecordChange(r.Context(), audit.EventTypeShareRevoke, actorID(r), resourceType, recordID,
		&audit.ChangeDetails{Before: before},
		"share "+strconv.FormatInt(shareID, 10))
	httputil.WriteNoContent(w)
}

func (h *Handlers) registerRecord(w http.ResponseWriter, r *http.Request) {
	resourceType, ok := httputil.ParsePathStringOrError(w, r, "resourceType")
	if !ok {
		return
	}
	recordID, ok := httputil.ParsePathStringOrError(w, r, "recordID")
	if !ok {
		return
	}
	var req struct {
		OwnerID *int64 `json:"owner_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ref := &RecordRef{ResourceType: resourceType, RecordID: recordID, OwnerID: req.OwnerID}
	if err := h.resolver.Store().RegisterRecord(r.Context(), ref); err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, ref)
}

func (h *Handlers) checkAccess(w http.ResponseWriter, r *http.Request) {
	resourceType, ok := httputil.ParsePathStringOrError(w, r, "resourceType")
	if !ok {
		return
	}
	recordID, ok := httputil.ParsePathStringOrError(w, r, "recordID")
	if !ok {
		return
	}

	userIDStr := httputil.ParseQueryString(r, "user_id", "")
	if userIDStr == "" {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid user_id")
		return
	}

	requested, err := ParseAccessLevel(httputil.ParseQueryString(r, "level", string(LevelRead)))
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	at, err := httputil.ParseQueryTime(r, "at")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	allowed, err := h.resolver.CanAccessRecord(r.Context(), userID, resourceType, recordID, requested, at)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveRecordCheck(resourceType, allowed)
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id":       userID,
		"resource_type": resourceType,
		"record_id":     recordID,
		"level":         requested,
		"allowed":       allowed,
	})
}
