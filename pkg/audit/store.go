package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Store queries and maintains persisted audit logs.
type Store struct {
	db *sql.DB
}

// NewStore creates a new audit store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Search returns events matching the filter, newest first.
func (s *Store) Search(ctx context.Context, filter SearchFilter) ([]Event, error) {
	var conditions []string
	var args []interface{}
	argN := 1

	addCondition := func(clause string, value interface{}) {
		conditions = append(conditions, fmt.Sprintf(clause, argN))
		args = append(args, value)
		argN++
	}

	if filter.StartTime != nil {
		addCondition("timestamp >= $%d", *filter.StartTime)
	}
	if filter.EndTime != nil {
		addCondition("timestamp <= $%d", *filter.EndTime)
	}
	if filter.ActorID != nil {
		addCondition("actor_id = $%d", *filter.ActorID)
	}
	if filter.Status != nil {
		addCondition("status = $%d", string(*filter.Status))
	}
	if filter.ResourceType != "" {
		addCondition("resource_type = $%d", filter.ResourceType)
	}
	if filter.ResourceID != "" {
		addCondition("resource_id = $%d", filter.ResourceID)
	}
	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		addCondition("event_type = ANY($%d)", pq.Array(types))
	}

	query := `
		SELECT id, timestamp, event_type, status, actor_id, actor_name,
		       resource_type, resource_id, request_id, ip_address, message, metadata, changes
		FROM audit_logs
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argN, argN+1)
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var actorID sql.NullInt64
		var metadataJSON, changesJSON sql.NullString

		err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&event.EventType,
			&event.Status,
			&actorID,
			&event.ActorName,
			&event.ResourceType,
			&event.ResourceID,
			&event.RequestID,
			&event.IPAddress,
			&event.Message,
			&metadataJSON,
			&changesJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		if actorID.Valid {
			id := actorID.Int64
			event.ActorID = &id
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		if changesJSON.Valid && changesJSON.String != "" {
			event.Changes = &ChangeDetails{}
			if err := json.Unmarshal([]byte(changesJSON.String), event.Changes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Purge deletes events older than the retention policy allows and returns
// how many were removed.
func (s *Store) Purge(ctx context.Context, policy RetentionPolicy, now time.Time) (int64, error) {
	if policy.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := now.AddDate(0, 0, -policy.RetentionDays)
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit logs: %w", err)
	}
	return res.RowsAffected()
}
