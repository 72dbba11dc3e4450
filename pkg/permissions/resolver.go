package permissions

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Resolver computes authorization decisions from a user's profile and their
// currently effective permission sets.
type Resolver struct {
	store *Store
	cache *scopeCache
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithScopeCache enables in-process caching of effective scopes. Entries
// self-expire at the earliest grant expiration, so a cached result never
// outlives a grant it was computed from.
func WithScopeCache(size int, ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.cache = newScopeCache(size, ttl)
	}
}

// NewResolver creates a resolver over the given database.
func NewResolver(db *sql.DB, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: NewStore(db)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store exposes the underlying store for administrative handlers.
func (r *Resolver) Store() *Store {
	return r.store
}

// IsAuthorized reports whether the user holds the requested scope at the
// given evaluation time.
//
// An unknown user is an error (the caller referenced a nonexistent entity);
// an inactive user or a user with no profile is simply unauthorized. Denial
// is the normal negative return, never an error.
func (r *Resolver) IsAuthorized(ctx context.Context, userID int64, req Scope, at time.Time) (bool, error) {
	ua, err := r.store.getUserAccess(ctx, userID)
	if err != nil {
		return false, err
	}

	// Hard gate: inactive users hold nothing, wildcards included.
	if !ua.Active {
		return false, nil
	}
	if !ua.ProfileID.Valid {
		return false, nil
	}

	scopes, err := r.effectiveScopes(ctx, userID, ua.ProfileID.Int64, at)
	if err != nil {
		return false, err
	}
	return AnyMatches(scopes, req), nil
}

// EffectiveScopes returns the union of the user's profile scopes and the
// scopes of every permission set effective at the given time. Used by audit
// and listing UIs; the result is a set of granted patterns, not an expansion
// of the catalog.
func (r *Resolver) EffectiveScopes(ctx context.Context, userID int64, at time.Time) ([]Scope, error) {
	ua, err := r.store.getUserAccess(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ua.Active || !ua.ProfileID.Valid {
		return nil, nil
	}
	return r.effectiveScopes(ctx, userID, ua.ProfileID.Int64, at)
}

// InvalidateUser drops any cached scopes for the user. Called after grant
// mutations so changes take effect immediately.
func (r *Resolver) InvalidateUser(userID int64) {
	if r.cache != nil {
		r.cache.invalidate(userID)
	}
}

func (r *Resolver) effectiveScopes(ctx context.Context, userID, profileID int64, at time.Time) ([]Scope, error) {
	if r.cache != nil {
		if scopes, ok := r.cache.get(userID, at); ok {
			return scopes, nil
		}
	}

	profile, err := r.store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("required profile for user %d: %w", userID, err)
	}

	setScopes, err := r.store.ActiveSetScopes(ctx, userID, at)
	if err != nil {
		return nil, err
	}

	// Set union over the two sources; duplicates keep matching correct but
	// bloat listings, so deduplicate on the canonical string.
	seen := make(map[string]bool, len(profile.Scopes)+len(setScopes))
	scopes := make([]Scope, 0, len(profile.Scopes)+len(setScopes))
	for _, s := range profile.Scopes {
		if !seen[s.String()] {
			seen[s.String()] = true
			scopes = append(scopes, s)
		}
	}
	for _, s := range setScopes {
		if !seen[s.String()] {
			seen[s.String()] = true
			scopes = append(scopes, s)
		}
	}

	if r.cache != nil {
		expiry, err := r.store.EarliestSetExpiry(ctx, userID, at)
		if err != nil {
			return nil, err
		}
		r.cache.put(userID, scopes, at, expiry)
	}
	return scopes, nil
}
