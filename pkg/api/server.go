package api

import (
	"database/sql"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/dealdesk/pkg/audit"
	"github.com/platinummonkey/dealdesk/pkg/auth"
	"github.com/platinummonkey/dealdesk/pkg/chatidentity"
	"github.com/platinummonkey/dealdesk/pkg/config"
	"github.com/platinummonkey/dealdesk/pkg/middleware"
	"github.com/platinummonkey/dealdesk/pkg/observability"
	"github.com/platinummonkey/dealdesk/pkg/permissions"
	"github.com/platinummonkey/dealdesk/pkg/sharing"
	"github.com/platinummonkey/dealdesk/pkg/tenancy"
	"github.com/platinummonkey/dealdesk/pkg/users"
)

// Server is the assembled DealDesk authorization service.
type Server struct {
	router  *mux.Router
	handler http.Handler

	Permissions *permissions.Resolver
	Tenancy     *tenancy.Resolver
	Sharing     *sharing.Resolver
	Chat        *chatidentity.Service
	Users       *users.Store
	Tokens      *auth.TokenStore
	Auditor     *audit.Emitter
}

// Options carries the server's external dependencies. Redis and Metrics are
// optional.
type Options struct {
	DB      *sql.DB
	Redis   *redis.Client
	Cache   config.CacheConfig
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Auditor *audit.Emitter
}

// NewServer wires the domain components and the middleware stack.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if opts.Auditor == nil {
		opts.Auditor = audit.NewEmitter(nil, opts.Logger.Slog())
	}

	var resolverOpts []permissions.ResolverOption
	if opts.Cache.Enabled && opts.Cache.ScopeCacheSize > 0 {
		resolverOpts = append(resolverOpts,
			permissions.WithScopeCache(opts.Cache.ScopeCacheSize, opts.Cache.ScopeCacheTTL))
	}
	permResolver := permissions.NewResolver(opts.DB, resolverOpts...)
	catalog := permissions.DefaultCatalog()

	tenancyStore := tenancy.NewStore(opts.DB)
	var treeSource tenancy.TreeSource = tenancyStore
	var treeCache *tenancy.TreeCache
	if opts.Redis != nil && opts.Cache.Enabled {
		treeCache = tenancy.NewTreeCache(tenancyStore, opts.Redis, opts.Cache.TreeCacheTTL)
		treeSource = treeCache
	}
	tenancyResolver := tenancy.NewResolver(treeSource, tenancyStore)

	sharingResolver := sharing.NewResolver(opts.DB, permResolver, tenancyResolver, sharing.DefaultResourceModules())

	chatService := chatidentity.NewService(
		chatidentity.NewStore(opts.DB),
		chatidentity.NewSettingsStore(opts.DB),
	)

	usersStore := users.NewStore(opts.DB)
	tokenStore := auth.NewTokenStore(opts.DB)

	s := &Server{
		router:      mux.NewRouter(),
		Permissions: permResolver,
		Tenancy:     tenancyResolver,
		Sharing:     sharingResolver,
		Chat:        chatService,
		Users:       usersStore,
		Tokens:      tokenStore,
		Auditor:     opts.Auditor,
	}

	users.NewHandlers(usersStore, opts.Auditor).RegisterRoutes(s.router)
	permissions.NewHandlers(permResolver, catalog, opts.Metrics, opts.Auditor).RegisterRoutes(s.router)
	var treeInvalidator tenancy.Invalidator
	if treeCache != nil {
		treeInvalidator = treeCache
	}
	tenancy.NewHandlers(tenancyStore, tenancyResolver, treeInvalidator, opts.Auditor).RegisterRoutes(s.router)
	sharing.NewHandlers(sharingResolver, opts.Metrics, opts.Auditor).RegisterRoutes(s.router)
	chatidentity.NewHandlers(chatService, opts.Metrics, opts.Auditor).RegisterRoutes(s.router)
	audit.NewHandlers(audit.NewStore(opts.DB)).RegisterRoutes(s.router)

	authMiddleware := middleware.NewAuthMiddleware(tokenStore, true)
	rateLimiter := middleware.NewRateLimiter(nil)
	s.handler = middleware.Chain(
		middleware.RequestID,
		middleware.Recovery(opts.Logger),
		middleware.Logging(opts.Logger, opts.Metrics),
		rateLimiter.Handler,
		authMiddleware.Handler,
	)(s.router)

	return s
}

// Handler returns the server's root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Router exposes the underlying router for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}
