package sharing

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/dealdesk/pkg/storage"
)

// MigrationComponent is the schema_migrations key for this package.
const MigrationComponent = "sharing"

// GetMigrations returns the sharing schema migrations.
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create sharing_rules table",
			SQL: `
				CREATE TABLE IF NOT EXISTS sharing_rules (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL DEFAULT '',
					resource_type VARCHAR(64) NOT NULL,
					from_kind VARCHAR(16) NOT NULL,
					from_profile VARCHAR(255) NOT NULL DEFAULT '',
					from_team_id BIGINT REFERENCES companies(id) ON DELETE CASCADE,
					to_kind VARCHAR(16) NOT NULL,
					to_profile VARCHAR(255) NOT NULL DEFAULT '',
					to_team_id BIGINT REFERENCES companies(id) ON DELETE CASCADE,
					level VARCHAR(16) NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					created_by BIGINT
				);

				CREATE INDEX idx_sharing_rules_resource_type ON sharing_rules(resource_type);
			`,
		},
		{
			Version:     2,
			Description: "Create record_shares table",
			SQL: `
				CREATE TABLE IF NOT EXISTS record_shares (
					id BIGSERIAL PRIMARY KEY,
					resource_type VARCHAR(64) NOT NULL,
					record_id VARCHAR(255) NOT NULL,
					user_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
					team_id BIGINT REFERENCES companies(id) ON DELETE CASCADE,
					level VARCHAR(16) NOT NULL,
					granted_by BIGINT NOT NULL,
					reason TEXT NOT NULL DEFAULT '',
					expires_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					CHECK ((user_id IS NULL) != (team_id IS NULL))
				);

				CREATE INDEX idx_record_shares_record ON record_shares(resource_type, record_id);
				CREATE INDEX idx_record_shares_user_id ON record_shares(user_id);
				CREATE INDEX idx_record_shares_team_id ON record_shares(team_id);
				CREATE INDEX idx_record_shares_expires_at ON record_shares(expires_at);
			`,
		},
		{
			Version:     3,
			Description: "Create record_registry table",
			SQL: `
				CREATE TABLE IF NOT EXISTS record_registry (
					resource_type VARCHAR(64) NOT NULL,
					record_id VARCHAR(255) NOT NULL,
					owner_id BIGINT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (resource_type, record_id)
				);

				CREATE INDEX idx_record_registry_owner_id ON record_registry(owner_id);
			`,
		},
	}
}

// Migrate applies pending sharing migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	return storage.ApplyMigrations(ctx, db, MigrationComponent, GetMigrations())
}
