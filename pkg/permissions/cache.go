package permissions

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// scopeCache caches computed effective scopes per user. Each entry records
// the instant it stops being valid: the earliest pending grant expiration,
// or the cache TTL when all grants are permanent. Reads past that instant
// are treated as misses, so expiration-at-decision-time semantics hold even
// for cached results.
type scopeCache struct {
	entries *lru.LRU[int64, scopeCacheEntry]
	ttl     time.Duration
}

type scopeCacheEntry struct {
	scopes     []Scope
	validUntil time.Time
}

func newScopeCache(size int, ttl time.Duration) *scopeCache {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &scopeCache{
		entries: lru.NewLRU[int64, scopeCacheEntry](size, nil, ttl),
		ttl:     ttl,
	}
}

func (c *scopeCache) get(userID int64, at time.Time) ([]Scope, bool) {
	entry, ok := c.entries.Get(userID)
	if !ok {
		return nil, false
	}
	if !entry.validUntil.After(at) {
		c.entries.Remove(userID)
		return nil, false
	}
	return entry.scopes, true
}

func (c *scopeCache) put(userID int64, scopes []Scope, at time.Time, earliestExpiry *time.Time) {
	validUntil := at.Add(c.ttl)
	if earliestExpiry != nil && earliestExpiry.Before(validUntil) {
		validUntil = *earliestExpiry
	}
	c.entries.Add(userID, scopeCacheEntry{scopes: scopes, validUntil: validUntil})
}

func (c *scopeCache) invalidate(userID int64) {
	c.entries.Remove(userID)
}
