// Package users manages platform user accounts: pre-provisioning, approval,
// invites, activation state and login tracking.
//
// Users are the shared subject of the authorization packages: permissions
// resolves a user's profile and permission sets, tenancy resolves the units a
// user is assigned to, and sharing resolves what a user may do with a record.
// A deactivated user keeps all rows but is denied everything.
package users
