// Package auth provides API token generation, hashing and validation for
// the DealDesk service surface. Tokens are random 256-bit values presented
// as "dealdesk_<base64url>"; only the SHA-256 hash is stored.
package auth
