// Package sharing resolves record-level access: given that a user may act on
// a resource type in general, may they act on this particular record?
//
// Four independent sources can grant access, evaluated in order of
// decreasing strength:
//
//  1. Ownership: the record's recorded owner always holds full access.
//  2. Override: a permission scope carrying the "all" qualifier lifts
//     per-record restrictions for its action (delegated to the permissions
//     resolver).
//  3. Sharing rules: always-on declarative grants from a class of owners to
//     a class of users, per resource type.
//  4. Record shares: ad-hoc, possibly expiring grants on one concrete
//     record, targeting a single user or team.
//
// Sources never subtract from each other: the granted level is the maximum
// across all matching sources, and a request succeeds when the requested
// level does not exceed it. A record with no recorded owner and no matching
// rule or share denies by default.
package sharing
