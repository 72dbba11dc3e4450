package chatidentity

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/dealdesk/pkg/storage"
)

// Migrations returns the chat identity schema migrations.
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "create chat_identities table",
			SQL: `
				CREATE TABLE IF NOT EXISTS chat_identities (
					id BIGSERIAL PRIMARY KEY,
					external_id VARCHAR(255) NOT NULL,
					workspace_id VARCHAR(255) NOT NULL,
					username VARCHAR(255) NOT NULL DEFAULT '',
					display_name VARCHAR(255) NOT NULL DEFAULT '',
					email VARCHAR(255) NOT NULL DEFAULT '',
					avatar_url TEXT NOT NULL DEFAULT '',
					user_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
					linked_by BIGINT,
					linked_at TIMESTAMP,
					blocked BOOLEAN NOT NULL DEFAULT FALSE,
					block_reason TEXT NOT NULL DEFAULT '',
					metadata JSONB NOT NULL DEFAULT '{}',
					first_seen_at TIMESTAMP NOT NULL,
					last_seen_at TIMESTAMP NOT NULL,
					UNIQUE (external_id, workspace_id)
				);
				CREATE INDEX IF NOT EXISTS idx_chat_identities_user ON chat_identities(user_id);
				CREATE INDEX IF NOT EXISTS idx_chat_identities_email ON chat_identities(email);
			`,
		},
		{
			Version:     2,
			Description: "create app_settings table",
			SQL: `
				CREATE TABLE IF NOT EXISTS app_settings (
					key VARCHAR(255) PRIMARY KEY,
					value TEXT NOT NULL
				);
			`,
		},
	}
}

// Migrate applies the chat identity migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	return storage.ApplyMigrations(ctx, db, "chatidentity", Migrations())
}
