package users

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/dealdesk/pkg/storage"
)

// Migrations returns the user schema migrations. They must run before every
// other component's migrations: users is the table the rest reference.
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL DEFAULT '',
					is_active BOOLEAN NOT NULL DEFAULT FALSE,
					is_pending BOOLEAN NOT NULL DEFAULT TRUE,
					profile_id BIGINT,
					manager_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
					metadata JSONB NOT NULL DEFAULT '{}',
					last_login_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
				CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
				CREATE INDEX IF NOT EXISTS idx_users_profile ON users(profile_id);
			`,
		},
		{
			Version:     2,
			Description: "create user_invites table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_invites (
					id BIGSERIAL PRIMARY KEY,
					email VARCHAR(255) NOT NULL,
					token_hash VARCHAR(64) NOT NULL UNIQUE,
					token_prefix VARCHAR(32) NOT NULL,
					profile_id BIGINT,
					invited_by BIGINT NOT NULL,
					expires_at TIMESTAMP NOT NULL,
					accepted_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
				CREATE INDEX IF NOT EXISTS idx_user_invites_email ON user_invites(email);
			`,
		},
	}
}

// Migrate applies the user migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	return storage.ApplyMigrations(ctx, db, "users", Migrations())
}
