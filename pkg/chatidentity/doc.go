// Package chatidentity tracks participants arriving from an external chat
// channel and decides whether each interaction may proceed.
//
// An identity is keyed by its channel-scoped external id plus the workspace
// id. Every inbound event first records the interaction (creating or
// refreshing the identity), then asks for an authorization decision. The
// decision is a pure function of the stored identity, the linked platform
// user's status, and the workspace-wide strict mode setting:
//
//	blocked                      -> denied (blocked)
//	unknown/unlinked, strict off -> allowed (open_access)
//	unknown/unlinked, strict on  -> denied (unknown_user / not_linked)
//	linked, user inactive        -> denied (user_inactive)
//	linked, user active          -> allowed (linked_active)
//
// The block flag is an independent axis: blocking preserves the underlying
// link state, and unblocking restores it untouched. Linking an identity that
// is already linked to a different user is a conflict, enforced by a guarded
// single-statement update rather than an application lock.
package chatidentity
