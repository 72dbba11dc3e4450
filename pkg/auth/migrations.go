package auth

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/dealdesk/pkg/storage"
)

// Migrations returns the auth schema migrations.
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "create api_tokens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS api_tokens (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					token_hash VARCHAR(64) NOT NULL UNIQUE,
					token_prefix VARCHAR(32) NOT NULL,
					name VARCHAR(255) NOT NULL DEFAULT '',
					expires_at TIMESTAMP,
					last_used_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					revoked_at TIMESTAMP,
					revoked_by BIGINT,
					revoke_reason TEXT
				);
				CREATE INDEX IF NOT EXISTS idx_api_tokens_user ON api_tokens(user_id);
			`,
		},
	}
}

// Migrate applies the auth migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	return storage.ApplyMigrations(ctx, db, "auth", Migrations())
}
