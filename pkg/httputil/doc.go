// Package httputil provides shared helpers for JSON request parsing and
// response writing, including the mapping from the domain sentinel errors
// (not found, conflict, invalid state) to HTTP status codes.
package httputil
