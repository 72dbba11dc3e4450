package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/dealdesk/pkg/auth"
	"github.com/platinummonkey/dealdesk/pkg/contextkeys"
	"github.com/platinummonkey/dealdesk/pkg/observability"
)

// AuthMiddleware authenticates requests by bearer token.
type AuthMiddleware struct {
	tokens   *auth.TokenStore
	optional bool
}

// NewAuthMiddleware creates an authentication middleware. When optional is
// true, requests without an Authorization header pass through anonymously.
func NewAuthMiddleware(tokens *auth.TokenStore, optional bool) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, optional: optional}
}

// Handler wraps an HTTP handler with authentication.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			m.unauthorizedResponse(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.unauthorizedResponse(w, "invalid authorization header format")
			return
		}

		authCtx, err := m.tokens.Validate(r.Context(), parts[1], time.Now().UTC())
		if err != nil {
			m.unauthorizedResponse(w, "invalid or expired token")
			return
		}

		ctx := contextkeys.WithAuth(r.Context(), authCtx)
		ctx = observability.WithUserID(ctx, strconv.FormatInt(authCtx.UserID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) unauthorizedResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// AuthFromContext returns the authenticated caller, or nil for anonymous
// requests.
func AuthFromContext(r *http.Request) *auth.AuthContext {
	if authCtx, ok := r.Context().Value(contextkeys.AuthKey).(*auth.AuthContext); ok {
		return authCtx
	}
	return nil
}
