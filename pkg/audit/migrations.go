package audit

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/dealdesk/pkg/storage"
)

// Migrations returns the audit schema migrations.
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "create audit_logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_logs (
					id BIGSERIAL PRIMARY KEY,
					timestamp TIMESTAMP NOT NULL,
					event_type VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL,
					actor_id BIGINT,
					actor_name VARCHAR(255) NOT NULL DEFAULT '',
					resource_type VARCHAR(50) NOT NULL DEFAULT '',
					resource_id VARCHAR(255) NOT NULL DEFAULT '',
					request_id VARCHAR(100) NOT NULL DEFAULT '',
					ip_address VARCHAR(45) NOT NULL DEFAULT '',
					message TEXT NOT NULL DEFAULT '',
					metadata JSONB,
					changes JSONB
				);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_actor ON audit_logs(actor_id);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id);
			`,
		},
	}
}

// Migrate applies the audit migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	return storage.ApplyMigrations(ctx, db, "audit", Migrations())
}
