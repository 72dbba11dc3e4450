package tenancy

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/dealdesk/pkg/storage"
)

// MigrationComponent is the schema_migrations key for this package.
const MigrationComponent = "tenancy"

// GetMigrations returns the tenancy schema migrations.
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create companies table",
			SQL: `
				CREATE TABLE IF NOT EXISTS companies (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					display_name VARCHAR(255) NOT NULL DEFAULT '',
					parent_id BIGINT REFERENCES companies(id) ON DELETE RESTRICT,
					kind VARCHAR(16) NOT NULL,
					partition_key VARCHAR(255) UNIQUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_companies_parent_id ON companies(parent_id);
			`,
		},
		{
			Version:     2,
			Description: "Create user_companies table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_companies (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
					added_by BIGINT,
					added_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(user_id, company_id)
				);

				CREATE INDEX idx_user_companies_user_id ON user_companies(user_id);
				CREATE INDEX idx_user_companies_company_id ON user_companies(company_id);
			`,
		},
	}
}

// Migrate applies pending tenancy migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	return storage.ApplyMigrations(ctx, db, MigrationComponent, GetMigrations())
}
