package permissions

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/dealdesk/pkg/storage"
)

// MigrationComponent is the schema_migrations key for this package.
const MigrationComponent = "permissions"

// GetMigrations returns the permissions schema migrations.
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create profiles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS profiles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					is_system BOOLEAN NOT NULL DEFAULT FALSE,
					scopes JSONB NOT NULL DEFAULT '[]',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					created_by BIGINT
				);

				CREATE INDEX idx_profiles_name ON profiles(name);
			`,
		},
		{
			Version:     2,
			Description: "Create permission_sets table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permission_sets (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					scopes JSONB NOT NULL DEFAULT '[]',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					created_by BIGINT
				);
			`,
		},
		{
			Version:     3,
			Description: "Create user_permission_sets table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_permission_sets (
					id BIGSERIAL PRIMARY KEY,
					set_id BIGINT NOT NULL REFERENCES permission_sets(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					granted_by BIGINT,
					granted_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP
				);

				CREATE INDEX idx_user_permission_sets_user_id ON user_permission_sets(user_id);
				CREATE INDEX idx_user_permission_sets_set_id ON user_permission_sets(set_id);
				CREATE INDEX idx_user_permission_sets_expires_at ON user_permission_sets(expires_at);
			`,
		},
	}
}

// Migrate applies pending permissions migrations and seeds the built-in
// profiles.
func Migrate(ctx context.Context, db *sql.DB) error {
	if err := storage.ApplyMigrations(ctx, db, MigrationComponent, GetMigrations()); err != nil {
		return err
	}
	return SeedBuiltInProfiles(ctx, NewStore(db))
}
