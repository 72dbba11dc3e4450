package permissions

import (
	"fmt"
	"strings"
)

// Wildcard matches any value in a single scope segment.
const Wildcard = "*"

// QualifierAll is the only defined scope qualifier. A scope carrying it
// bypasses per-record ownership and sharing restrictions for its action.
const QualifierAll = "all"

// Scope identifies a permission as a (module, resource, action) triple with
// an optional qualifier segment.
type Scope struct {
	Module    string `json:"module"`
	Resource  string `json:"resource"`
	Action    string `json:"action"`
	Qualifier string `json:"qualifier,omitempty"`
}

// NewScope builds a qualifier-less scope triple.
func NewScope(module, resource, action string) Scope {
	return Scope{Module: module, Resource: resource, Action: action}
}

// WithQualifier returns a copy of the scope carrying the given qualifier.
func (s Scope) WithQualifier(qualifier string) Scope {
	s.Qualifier = qualifier
	return s
}

// String renders the scope in its canonical colon-separated form.
func (s Scope) String() string {
	if s.Qualifier == "" {
		return s.Module + ":" + s.Resource + ":" + s.Action
	}
	return s.Module + ":" + s.Resource + ":" + s.Action + ":" + s.Qualifier
}

// ParseScope parses a colon-separated scope string with three or four
// segments. Empty segments are rejected.
func ParseScope(raw string) (Scope, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 && len(parts) != 4 {
		return Scope{}, fmt.Errorf("invalid scope %q: expected 3 or 4 segments", raw)
	}
	for _, p := range parts {
		if p == "" {
			return Scope{}, fmt.Errorf("invalid scope %q: empty segment", raw)
		}
	}
	s := Scope{Module: parts[0], Resource: parts[1], Action: parts[2]}
	if len(parts) == 4 {
		s.Qualifier = parts[3]
	}
	return s, nil
}

// Matches reports whether this granted scope pattern matches the requested
// scope. Each of module, resource and action matches when the granted value
// equals the requested value or is the wildcard. The qualifier is opt-in on
// both sides: a qualifier-bearing request is only matched by a grant that
// defines the same qualifier (or the wildcard), and a qualifier-bearing
// grant never matches a plain triple request.
func (s Scope) Matches(req Scope) bool {
	if !segmentMatches(s.Module, req.Module) {
		return false
	}
	if !segmentMatches(s.Resource, req.Resource) {
		return false
	}
	if !segmentMatches(s.Action, req.Action) {
		return false
	}
	if s.Qualifier == "" && req.Qualifier == "" {
		return true
	}
	if s.Qualifier == "" || req.Qualifier == "" {
		return false
	}
	return segmentMatches(s.Qualifier, req.Qualifier)
}

func segmentMatches(granted, requested string) bool {
	return granted == Wildcard || granted == requested
}

// AnyMatches reports whether any of the granted patterns matches the request.
func AnyMatches(granted []Scope, req Scope) bool {
	for _, g := range granted {
		if g.Matches(req) {
			return true
		}
	}
	return false
}

// ParseScopes parses a list of scope strings, failing on the first invalid
// entry.
func ParseScopes(raw []string) ([]Scope, error) {
	scopes := make([]Scope, 0, len(raw))
	for _, r := range raw {
		s, err := ParseScope(r)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, s)
	}
	return scopes, nil
}
