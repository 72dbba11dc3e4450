package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// DBSink writes audit events to the audit_logs table.
type DBSink struct {
	db *sql.DB
}

// NewDBSink creates a database-backed audit sink.
func NewDBSink(db *sql.DB) (*DBSink, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBSink{db: db}, nil
}

// Log inserts the event.
func (s *DBSink) Log(ctx context.Context, event *Event) error {
	var metadataJSON, changesJSON []byte
	if event.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}
	if event.Changes != nil {
		var err error
		changesJSON, err = json.Marshal(event.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (
			timestamp, event_type, status,
			actor_id, actor_name,
			resource_type, resource_id,
			request_id, ip_address,
			message, metadata, changes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.Status,
		event.ActorID, event.ActorName,
		event.ResourceType, event.ResourceID,
		event.RequestID, event.IPAddress,
		event.Message, metadataJSON, changesJSON,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *DBSink) Close() error {
	return nil
}
