// Package storage provides the PostgreSQL connection pool and the shared
// schema migration runner used by every component store. The authorization
// core only assumes point lookups, filtered scans and single-row atomic
// upserts from its store, so stores receive a plain *sql.DB rather than a
// richer abstraction.
package storage
