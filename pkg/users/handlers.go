package users

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/dealdesk/pkg/audit"
	"github.com/platinummonkey/dealdesk/pkg/httputil"
	"github.com/platinummonkey/dealdesk/pkg/middleware"
)

// Handlers provides the user administration HTTP API.
type Handlers struct {
	store   *Store
	auditor *audit.Emitter
}

// NewHandlers creates user handlers.
func NewHandlers(store *Store, auditor *audit.Emitter) *Handlers {
	if auditor == nil {
		auditor = audit.NewEmitter(nil, nil)
	}
	return &Handlers{store: store, auditor: auditor}
}

// RegisterRoutes registers user routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users", h.list).Methods("GET")
	router.HandleFunc("/users", h.provision).Methods("POST")
	router.HandleFunc("/users/{id}", h.get).Methods("GET")
	router.HandleFunc("/users/{id}/approve", h.approve).Methods("POST")
	router.HandleFunc("/users/{id}/deactivate", h.deactivate).Methods("POST")
	router.HandleFunc("/users/{id}/reactivate", h.reactivate).Methods("POST")
	router.HandleFunc("/users/{id}/manager", h.setManager).Methods("PUT")

	router.HandleFunc("/invites", h.listInvites).Methods("GET")
	router.HandleFunc("/invites", h.createInvite).Methods("POST")
	router.HandleFunc("/invites/redeem", h.redeemInvite).Methods("POST")
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

func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := httputil.ParsePagination(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	users, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"users": users})
}

func (h *Handlers) provision(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	user, err := h.store.Provision(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.auditor.Record(r.Context(), audit.EventTypeUserProvision, actorID(r), "user", strconv.FormatInt(user.ID, 10), user.Email)
	httputil.WriteCreated(w, user)
}

func (h *Handlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	user, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

func (h *Handlers) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	user, err := h.store.Approve(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.auditor.Record(r.Context(), audit.EventTypeUserApprove, actorID(r), "user", strconv.FormatInt(id, 10), user.Email)
	httputil.WriteSuccess(w, user)
}

func (h *Handlers) deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.Deactivate(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.auditor.Record(r.Context(), audit.EventTypeUserDeactivate, actorID(r), "user", strconv.FormatInt(id, 10), "")
	httputil.WriteNoContent(w)
}

func (h *Handlers) reactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.Reactivate(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.auditor.Record(r.Context(), audit.EventTypeUserReactivate, actorID(r), "user", strconv.FormatInt(id, 10), "")
	httputil.WriteNoContent(w)
}

func (h *Handlers) setManager(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		ManagerID *int64 `json:"manager_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := h.store.SetManager(r.Context(), id, req.ManagerID); err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) listInvites(w http.ResponseWriter, r *http.Request) {
	invites, err := h.store.ListInvites(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"invites": invites})
}

func (h *Handlers) createInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		ProfileID *int64 `json:"profile_id,omitempty"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	var invitedBy int64
	if actor := actorID(r); actor != nil {
		invitedBy = *actor
	}

	invite, token, err := h.store.CreateInvite(r.Context(), req.Email, req.ProfileID, invitedBy, time.Now().UTC())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.auditor.Record(r.Context(), audit.EventTypeInviteCreate, actorID(r), "invite", strconv.FormatInt(invite.ID, 10), invite.Email)
	// The raw token appears in this response and nowhere else.
	httputil.WriteCreated(w, map[string]interface{}{"invite": invite, "token": token})
}

func (h *Handlers) redeemInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		DisplayName string `json:"display_name,omitempty"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Token == "" {
		httputil.WriteBadRequest(w, "token is required")
		return
	}

	user, err := h.store.RedeemInvite(r.Context(), req.Token, req.DisplayName, time.Now().UTC())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.auditor.Record(r.Context(), audit.EventTypeInviteRedeem, nil, "user", strconv.FormatInt(user.ID, 10), user.Email)
	httputil.WriteSuccess(w, user)
}
