package permissions

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/dealdesk/pkg/audit"
	"github.com/platinummonkey/dealdesk/pkg/httputil"
	"github.com/platinummonkey/dealdesk/pkg/middleware"
	"github.com/platinummonkey/dealdesk/pkg/observability"
)

// Handlers provides the permissions HTTP API.
type Handlers struct {
	resolver *Resolver
	catalog  *Catalog
	metrics  *observability.Metrics
	auditor  *audit.Emitter
}

// NewHandlers creates permissions handlers. metrics may be nil.
func NewHandlers(resolver *Resolver, catalog *Catalog, metrics *observability.Metrics, auditor *audit.Emitter) *Handlers {
	if auditor == nil {
		auditor = audit.NewEmitter(nil, nil)
	}
	return &Handlers{resolver: resolver, catalog: catalog, metrics: metrics, auditor: auditor}
}

// RegisterRoutes registers permissions routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/profiles", h.listProfiles).Methods("GET")
	router.HandleFunc("/profiles", h.createProfile).Methods("POST")
	router.HandleFunc("/profiles/{id}", h.getProfile).Methods("GET")
	router.HandleFunc("/profiles/{id}", h.updateProfile).Methods("PUT")
	router.HandleFunc("/profiles/{id}", h.deleteProfile).Methods("DELETE")

	router.HandleFunc("/permission-sets", h.listSets).Methods("GET")
	router.HandleFunc("/permission-sets", h.createSet).Methods("POST")
	router.HandleFunc("/permission-sets/{id}", h.getSet).Methods("GET")
	router.HandleFunc("/permission-sets/{id}", h.deleteSet).Methods("DELETE")

	router.HandleFunc("/users/{id}/profile", h.assignProfile).Methods("PUT")
	router.HandleFunc("/users/{id}/permission-sets", h.listAssignments).Methods("GET")
	router.HandleFunc("/users/{id}/permission-sets", h.assignSet).Methods("POST")
	router.HandleFunc("/users/{id}/permission-sets/{assignmentID}", h.revokeSet).Methods("DELETE")

	router.HandleFunc("/users/{id}/effective-scopes", h.effectiveScopes).Methods("GET")
	router.HandleFunc("/authz/check", h.checkAuthorization).Methods("GET")

	router.HandleFunc("/scope-catalog", h.listCatalog).Methods("GET")
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

func (h *Handlers) listProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.resolver.Store().ListProfiles(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"profiles": profiles})
}

func (h *Handlers) createProfile(w http.ResponseWriter, r *http.Request) {
	var profile Profile
	if !httputil.ParseJSONOrError(w, r, &profile) {
		return
	}
	if profile.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	if err := h.catalog.Validate(profile.Scopes); err != nil {
		h.writeError(w, err)
		return
	}
	profile.CreatedBy = actorID(r)

	if err := h.resolver.Store().CreateProfile(r.Context(), &profile); err != nil {
		h.writeError(w, err)
		return
	}
	h.auditor.Record(r.Context(), audit.EventTypeProfileCreate, actorID(r), "profile", strconv.FormatInt(profile.ID, 10), profile.Name)
	httputil.WriteCreated(w, profile)
}

func (h *Handlers) getProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	profile, err := h.resolver.Store().GetProfile(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, profile)
}

func (h *Handlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var profile Profile
	if !httputil.ParseJSONOrError(w, r, &profile) {
		return
	}
	profile.ID = id
	if err := h.catalog.Validate(profile.Scopes); err != nil {
		h.writeError(w, err)
		return
	}

	prior, err := h.resolver.Store().GetProfile(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.resolver.Store().UpdateProfile(r.Context(), &profile); err != nil {
		h.writeError(w, err)
		return
	}
	h.auditor.RecordChange(r.Context(), audit.EventTypeProfileUpdate, actorID(r), "profile", strconv.FormatInt(id, 10),
		&audit.ChangeDetails{
			Before: map[string]any{"name": prior.Name, "scopes": renderScopes(prior.Scopes)},
			After:  map[string]any{"name": profile.Name, "scopes": renderScopes(profile.Scopes)},
		}, profile.Name)
	httputil.WriteSuccess(w, profile)
}

func (h *Handlers) deleteProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.resolver.Store().DeleteProfile(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.auditor.Record(r.Context(), audit.EventTypeProfileDelete, actorID(r), "profile", strconv.FormatInt(id, 10), "")
	httputil.WriteNoContent(w)
}

func (h *Handlers) listSets(w http.ResponseWriter, r *http.Request) {
	sets, err := h.resolver.Store().ListPermissionSets(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"permission_sets": sets})
}

func (h *Handlers) createSet(w http.ResponseWriter, r *http.Request) {
	var set PermissionSet
	if !httputil.ParseJSONOrError(w, r, &set) {
		return
	}
	if set.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	if err := h.catalog.Validate(set.Scopes); err != nil {
		h.writeError(w, err)
		return
	}
	set.CreatedBy = actorID(r)

	if err := h.resolver.Store().CreatePermissionSet(r.Context(), &set); err != nil {
		h.writeError(w, err)
		return
	}
	h.auditor.Record(r.Context(), audit.EventTypeSetCreate, actorID(r), "permission_set", strconv.FormatInt(set.ID, 10), set.Name)
	httputil.WriteCreated(w, set)
}

func (h *Handlers) getSet(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	set, err := h.resolver.Store().GetPermissionSet(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, set)
}

func (h *Handlers) deleteSet(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.resolver.Store().DeletePermissionSet(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.auditor.Record(r.Context(), audit.EventTypeSetDelete, actorID(r), "permission_set", strconv.FormatInt(id, 10), "")
	httputil.WriteNoContent(w)
}

func (h *Handlers) assignProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		ProfileID int64 `json:"profile_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	prior, err := h.resolver.Store().UserProfileID(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.resolver.Store().AssignProfile(r.Context(), userID, req.ProfileID); err != nil {
		h.writeError(w, err)
		return
	}
	h.resolver.InvalidateUser(userID)
	h.auditor.RecordChange(r.Context(), audit.EventTypeProfileAssign, actorID(r), "user", strconv.FormatInt(userID, 10),
		&audit.ChangeDetails{
			Before: map[string]any{"profile_id": prior},
			After:  map[string]any{"profile_id": req.ProfileID},
		}, "profile "+strconv.FormatInt(req.ProfileID, 10))
	httputil.WriteNoContent(w)
}

func (h *Handlers) listAssignments(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	assignments, err := h.resolver.Store().ListAssignments(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"assignments": assignments})
}

func (h *Handlers) assignSet(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		SetID     int64      `json:"set_id"`
		ExpiresAt *time.Time `json:"expires_at,omitempty"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	assignment := &SetAssignment{
		SetID:     req.SetID,
		UserID:    userID,
		GrantedBy: actorID(r),
		ExpiresAt: req.ExpiresAt,
	}
	if err := h.resolver.Store().AssignSet(r.Context(), assignment); err != nil {
		h.writeError(w, err)
		return
	}
	h.resolver.InvalidateUser(userID)
	h.auditor.RecordChange(r.Context(), audit.EventTypeSetAssign, actorID(r), "user", strconv.FormatInt(userID, 10),
		&audit.ChangeDetails{
			After: map[string]any{"set_id": req.SetID, "assignment_id": assignment.ID, "expires_at": req.ExpiresAt},
		}, "permission set "+strconv.FormatInt(req.SetID, 10))
	httputil.WriteCreated(w, assignment)
}

func (h *Handlers) revokeSet(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	assignmentID, ok := httputil.ParsePathInt64OrError(w, r, "assignmentID")
	if !ok {
		return
	}
	before := map[string]any{"assignment_id": assignmentID}
	if assignments, err := h.resolver.Store().ListAssignments(r.Context(), userID); err == nil {
		for _, a := range assignments {
			if a.ID == assignmentID {
				before["set_id"] = a.SetID
				before["expires_at"] = a.ExpiresAt
			}
		}
	}

	if err := h.resolver.Store().RevokeSet(r.Context(), assignmentID); err != nil {
		h.writeError(w, err)
		return
	}
	h.resolver.InvalidateUser(userID)
	h.auditor.RecordChange(r.Context(), audit.EventTypeSetRevoke, actorID(r), "user", strconv.FormatInt(userID, 10),
		&audit.ChangeDetails{Before: before},
		"assignment "+strconv.FormatInt(assignmentID, 10))
	httputil.WriteNoContent(w)
}

func (h *Handlers) effectiveScopes(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	at, err := httputil.ParseQueryTime(r, "at")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	scopes, err := h.resolver.EffectiveScopes(r.Context(), userID, at)
	if err != nil {
		h.writeError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"user_id": userID, "scopes": renderScopes(scopes)})
}

func (h *Handlers) checkAuthorization(w http.ResponseWriter, r *http.Request) {
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

	scopeStr := httputil.ParseQueryString(r, "scope", "")
	if scopeStr == "" {
		httputil.WriteBadRequest(w, "scope is required")
		return
	}
	scope, err := ParseScope(scopeStr)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	at, err := httputil.ParseQueryTime(r, "at")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	started := time.Now()
	allowed, err := h.resolver.IsAuthorized(r.Context(), userID, scope, at)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveAuthzCheck(allowed, time.Since(started))
	}
	if !allowed {
		h.auditor.Emit(r.Context(), &audit.Event{
			EventType:    audit.EventTypeAuthzDenied,
			Status:       audit.EventStatusDenied,
			ActorID:      &userID,
			ResourceType: "scope",
			ResourceID:   scope.String(),
		})
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id": userID,
		"scope":   scope.String(),
		"allowed": allowed,
	})
}

func renderScopes(scopes []Scope) []string {
	rendered := make([]string, len(scopes))
	for i, s := range scopes {
		rendered[i] = s.String()
	}
	return rendered
}

func (h *Handlers) listCatalog(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]interface{}{
		"scopes":  h.catalog.List(),
		"modules": h.catalog.Modules(),
	})
}
