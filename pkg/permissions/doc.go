// Package permissions implements the permission catalog and the permission
// resolver for the DealDesk platform.
//
// A permission is identified by a scope: a (module, resource, action) triple
// with an optional qualifier segment, rendered as "module:resource:action"
// or "module:resource:action:qualifier". The only defined qualifier is "all",
// which lifts per-record ownership restrictions for the matched action.
// Any segment of a granted scope may be the wildcard "*".
//
// A user's effective scopes are the union of two sources:
//
//   - the scopes of their single assigned profile (the base role template)
//   - the scopes of every permission set currently assigned to them whose
//     expiration, if any, is still in the future
//
// There is no deny rule and no precedence: the model is additive-only, and a
// request is authorized iff at least one effective scope matches it. Inactive
// and unknown users are authorized for nothing regardless of their grants;
// the active check is a hard gate evaluated before any matching.
//
// All expiration checks compare against a caller-supplied evaluation time so
// that decisions stay deterministic and testable. Nothing in this package
// reads the wall clock during resolution.
package permissions
