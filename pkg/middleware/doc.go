// Package middleware provides HTTP middleware for the DealDesk API:
// bearer-token authentication, request IDs, request logging with metrics,
// panic recovery and in-memory rate limiting.
package middleware
