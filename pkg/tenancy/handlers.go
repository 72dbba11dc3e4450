package tenancy

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/dealdesk/pkg/audit"
	"github.com/platinummonkey/dealdesk/pkg/httputil"
	"github.com/platinummonkey/dealdesk/pkg/middleware"
)

// Invalidator is implemented by the redis tree cache.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Handlers provides the tenancy HTTP API.
type Handlers struct {
	store    *Store
	resolver *Resolver
	cache    Invalidator
	auditor  *audit.Emitter
}

// NewHandlers creates tenancy handlers. cache may be nil when the tree cache
// is disabled.
func NewHandlers(store *Store, resolver *Resolver, cache Invalidator, auditor *audit.Emitter) *Handlers {
	if auditor == nil {
		auditor = audit.NewEmitter(nil, nil)
	}
	return &Handlers{store: store, resolver: resolver, cache: cache, auditor: auditor}
}

// RegisterRoutes registers tenancy routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/companies", h.listCompanies).Methods("GET")
	router.HandleFunc("/companies", h.createCompany).Methods("POST")
	router.HandleFunc("/companies/{id}", h.getCompany).Methods("GET")
	router.HandleFunc("/companies/{id}", h.updateCompany).Methods("PUT")
	router.HandleFunc("/companies/{id}", h.deleteCompany).Methods("DELETE")
	router.HandleFunc("/companies/{id}/ancestry", h.ancestry).Methods("GET")
	router.HandleFunc("/companies/{id}/users", h.assignedUsers).Methods("GET")

	router.HandleFunc("/users/{id}/companies", h.userCompanies).Methods("GET")
	router.HandleFunc("/users/{id}/companies", h.assignUser).Methods("POST")
	router.HandleFunc("/users/{id}/companies/{companyID}", h.unassignUser).Methods("DELETE")
	router.HandleFunc("/users/{id}/partitions", h.userPartitions).Methods("GET")
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	httputil.WriteSentinelError(w, err, ErrNotFound, ErrConflict, ErrInvalidState)
}

func (h *Handlers) invalidateTree(ctx context.Context) {
	if h.cache != nil {
		// Cache failures degrade to source reads; nothing to surface.
		_ = h.cache.Invalidate(ctx)
	}
}

func actorID(r *http.Request) *int64 {
	if authCtx := middleware.AuthFromContext(r); authCtx != nil {
		id := authCtx.UserID
		return &id
	}
	return nil
}

func (h *Handlers) listCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.store.ListCompanies(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"companies": companies})
}

func (h *Handlers) createCompany(w http.ResponseWriter, r *http.Request) {
	var company Company
	if !httputil.ParseJSONOrError(w, r, &company) {
		return
	}
	if err := h.store.CreateCompany(r.Context(), &company); err != nil {
		h.writeError(w, err)
		return
	}
	h.invalidateTree(r.Context())
	h.auditor.Record(r.Context(), audit.EventTypeCompanyCreate, actorID(r), "company", strconv.FormatInt(company.ID, 10), company.Name)
	httputil.WriteCreated(w, company)
}

func (h *Handlers) getCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	company, err := h.store.GetCompany(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, company)
}

func (h *Handlers) updateCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var company Company
	if !httputil.ParseJSONOrError(w, r, &company) {
		return
	}
	company.ID = id
	if err := h.store.UpdateCompany(r.Context(), &company); err != nil {
		h.writeError(w, err)
		return
	}
	h.invalidateTree(r.Context())
	h.auditor.Record(r.Context(), audit.EventTypeCompanyUpdate, actorID(r), "company", strconv.FormatInt(id, 10), company.Name)
	httputil.WriteSuccess(w, company)
}

func (h *Handlers) deleteCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteCompany(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.invalidateTree(r.Context())
	h.auditor.Record(r.Context(), audit.EventTypeCompanyDelete, actorID(r), "company", strconv.FormatInt(id, 10), "")
	httputil.WriteNoContent(w)
}

func (h *Handlers) ancestry(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	chain, err := h.resolver.AncestryClosure(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"company_id": id, "ancestry": chain})
}

func (h *Handlers) assignedUsers(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	userIDs, err := h.store.AssignedUsers(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"company_id": id, "user_ids": userIDs})
}

func (h *Handlers) userCompanies(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	companyIDs, err := h.store.AssignedCompanyIDs(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"user_id": userID, "company_ids": companyIDs})
}

func (h *Handlers) assignUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		CompanyID int64 `json:"company_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	assignment := &Assignment{UserID: userID, CompanyID: req.CompanyID, AddedBy: actorID(r)}
	if err := h.store.AssignUser(r.Context(), assignment); err != nil {
		h.writeError(w, err)
		return
	}
	h.auditor.Record(r.Context(), audit.EventTypeUserAssign, actorID(r), "company", strconv.FormatInt(req.CompanyID, 10),
		"user "+strconv.FormatInt(userID, 10))
	httputil.WriteCreated(w, assignment)
}

func (h *Handlers) unassignUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	companyID, ok := httputil.ParsePathInt64OrError(w, r, "companyID")
	if !ok {
		return
	}
	if err := h.store.UnassignUser(r.Context(), userID, companyID); err != nil {
		h.writeError(w, err)
		return
	}
	h.auditor.Record(r.Context(), audit.EventTypeUserUnassign, actorID(r), "company", strconv.FormatInt(companyID, 10),
		"user "+strconv.FormatInt(userID, 10))
	httputil.WriteNoContent(w)
}

func (h *Handlers) userPartitions(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	partitions, err := h.resolver.UserPartitions(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"user_id": userID, "partition_keys": partitions})
}
