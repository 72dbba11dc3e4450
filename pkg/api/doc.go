// Package api assembles the DealDesk authorization service: it wires the
// users, permissions, tenancy, sharing, chat identity and audit components
// onto one router behind the shared middleware stack.
package api
