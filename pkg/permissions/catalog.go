package permissions

import (
	"fmt"
	"sort"
	"sync"
)

// ScopeDef describes one recognized scope triple in the catalog.
type ScopeDef struct {
	Scope       Scope  `json:"scope"`
	Description string `json:"description,omitempty"`
}

// Catalog is the registry of recognized scope triples. Profiles and
// permission sets are validated against it at write time so that typos in
// grants surface immediately instead of silently never matching.
//
// The catalog is safe for concurrent use; resolution never consults it.
type Catalog struct {
	mu    sync.RWMutex
	defs  map[string]ScopeDef
	added []string
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{defs: make(map[string]ScopeDef)}
}

// Register adds a scope definition to the catalog. Re-registering a triple
// replaces its description.
func (c *Catalog) Register(def ScopeDef) {
	key := def.Scope.triple().String()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.defs[key]; !ok {
		c.added = append(c.added, key)
	}
	c.defs[key] = def
}

// Known reports whether the catalog recognizes the scope's triple. The
// qualifier is ignored: qualifiers refine a triple rather than naming a new
// one.
func (c *Catalog) Known(s Scope) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.defs[s.triple().String()]
	return ok
}

// List returns all registered definitions in registration order.
func (c *Catalog) List() []ScopeDef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ScopeDef, 0, len(c.added))
	for _, key := range c.added {
		out = append(out, c.defs[key])
	}
	return out
}

// Modules returns the sorted set of module names present in the catalog.
func (c *Catalog) Modules() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]bool)
	for _, def := range c.defs {
		seen[def.Scope.Module] = true
	}
	mods := make([]string, 0, len(seen))
	for m := range seen {
		mods = append(mods, m)
	}
	sort.Strings(mods)
	return mods
}

// Validate checks a grant list against the catalog. Patterns containing a
// wildcard segment are accepted as-is; fully concrete triples must be
// registered. A scope with an unrecognized qualifier is rejected.
func (c *Catalog) Validate(scopes []Scope) error {
	for _, s := range scopes {
		if s.Qualifier != "" && s.Qualifier != QualifierAll && s.Qualifier != Wildcard {
			return fmt.Errorf("%w: scope %q: unknown qualifier %q", ErrInvalidState, s.String(), s.Qualifier)
		}
		if s.Module == Wildcard || s.Resource == Wildcard || s.Action == Wildcard {
			continue
		}
		if !c.Known(s) {
			return fmt.Errorf("%w: scope %q is not in the catalog", ErrInvalidState, s.String())
		}
	}
	return nil
}

func (s Scope) triple() Scope {
	s.Qualifier = ""
	return s
}

// DefaultCatalog returns the catalog seeded with the platform's scope
// triples.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	for _, def := range defaultScopeDefs() {
		c.Register(def)
	}
	return c
}

func defaultScopeDefs() []ScopeDef {
	crud := func(module, resource string) []ScopeDef {
		return []ScopeDef{
			{Scope: NewScope(module, resource, "create")},
			{Scope: NewScope(module, resource, "read")},
			{Scope: NewScope(module, resource, "update")},
			{Scope: NewScope(module, resource, "delete")},
		}
	}

	var defs []ScopeDef
	defs = append(defs, crud("sales", "proposals")...)
	defs = append(defs, crud("sales", "bookings")...)
	defs = append(defs, crud("sales", "mockups")...)
	defs = append(defs,
		ScopeDef{Scope: NewScope("sales", "proposals", "manage"), Description: "Full control over proposals"},
		ScopeDef{Scope: NewScope("sales", "bookings", "manage"), Description: "Full control over booking orders"},
		ScopeDef{Scope: NewScope("sales", "mockups", "manage"), Description: "Full control over mockups"},
	)

	defs = append(defs, crud("core", "users")...)
	defs = append(defs, crud("core", "profiles")...)
	defs = append(defs, crud("core", "permission_sets")...)
	defs = append(defs, crud("core", "companies")...)
	defs = append(defs,
		ScopeDef{Scope: NewScope("core", "users", "provision"), Description: "Pre-provision platform accounts"},
		ScopeDef{Scope: NewScope("core", "users", "approve"), Description: "Approve pending accounts"},
		ScopeDef{Scope: NewScope("core", "shares", "manage"), Description: "Manage sharing rules and record shares"},
		ScopeDef{Scope: NewScope("core", "audit", "read"), Description: "Query the audit trail"},
	)

	defs = append(defs,
		ScopeDef{Scope: NewScope("chat", "identities", "read")},
		ScopeDef{Scope: NewScope("chat", "identities", "link"), Description: "Link chat identities to platform accounts"},
		ScopeDef{Scope: NewScope("chat", "identities", "block")},
		ScopeDef{Scope: NewScope("chat", "settings", "update"), Description: "Change chat access settings"},
	)

	defs = append(defs,
		ScopeDef{Scope: NewScope("reports", "dashboards", "read")},
		ScopeDef{Scope: NewScope("reports", "dashboards", "export")},
	)

	return defs
}
