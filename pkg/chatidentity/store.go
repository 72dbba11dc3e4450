package chatidentity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store handles chat identity persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new chat identity store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get retrieves an identity by its channel-scoped key, or nil when none is
// stored. Absence is a valid state (UNKNOWN), not an error.
func (s *Store) Get(ctx context.Context, externalID, workspaceID string) (*Identity, error) {
	query := `
		SELECT id, external_id, workspace_id, username, display_name, email, avatar_url,
		       user_id, linked_by, linked_at, blocked, block_reason, metadata, first_seen_at, last_seen_at
		FROM chat_identities
		WHERE external_id = $1 AND workspace_id = $2
	`

	identity, err := scanIdentity(s.db.QueryRowContext(ctx, query, externalID, workspaceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat identity: %w", err)
	}
	return identity, nil
}

// Require retrieves an identity that must exist.
func (s *Store) Require(ctx context.Context, externalID, workspaceID string) (*Identity, error) {
	identity, err := s.Get(ctx, externalID, workspaceID)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, fmt.Errorf("%w: chat identity %s/%s", ErrNotFound, workspaceID, externalID)
	}
	return identity, nil
}

// Upsert records an interaction: it creates the identity in the unlinked
// state or refreshes snapshot fields and last_seen on the existing row. The
// link and block axes are never touched here.
func (s *Store) Upsert(ctx context.Context, externalID, workspaceID string, snapshot Snapshot, at time.Time) (*Identity, error) {
	metadataJSON, err := marshalMetadata(snapshot.Metadata)
	if err != nil {
		return nil, err
	}

	// Single-statement upsert: concurrent first interactions race to the
	// unique (external_id, workspace_id) pair and both settle on one row.
	// Empty snapshot fields keep the previously observed value.
	query := `
		INSERT INTO chat_identities (external_id, workspace_id, username, display_name, email, avatar_url, metadata, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (external_id, workspace_id) DO UPDATE SET
			username = CASE WHEN excluded.username != '' THEN excluded.username ELSE chat_identities.username END,
			display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE chat_identities.display_name END,
			email = CASE WHEN excluded.email != '' THEN excluded.email ELSE chat_identities.email END,
			avatar_url = CASE WHEN excluded.avatar_url != '' THEN excluded.avatar_url ELSE chat_identities.avatar_url END,
			metadata = CASE WHEN excluded.metadata != '{}' THEN excluded.metadata ELSE chat_identities.metadata END,
			last_seen_at = excluded.last_seen_at
	`
	_, err = s.db.ExecContext(ctx, query,
		externalID,
		workspaceID,
		snapshot.Username,
		snapshot.DisplayName,
		snapshot.Email,
		snapshot.AvatarURL,
		metadataJSON,
		at,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert chat identity: %w", err)
	}
	return s.Require(ctx, externalID, workspaceID)
}

// TryLink links an identity to a user unless it is already linked to a
// different one. The guard is the WHERE clause of a single update: zero rows
// affected on an existing row means a conflicting link, with no window for a
// check-then-act race.
func (s *Store) TryLink(ctx context.Context, externalID, workspaceID string, userID int64, linkedBy *int64, at time.Time) error {
	identity, err := s.Get(ctx, externalID, workspaceID)
	if err != nil {
		return err
	}
	if identity == nil {
		// Linking an unseen identity creates it directly in the linked
		// state.
		query := `
			INSERT INTO chat_identities (external_id, workspace_id, user_id, linked_by, linked_at, metadata, first_seen_at, last_seen_at)
			VALUES ($1, $2, $3, $4, $5, '{}', $5, $5)
			ON CONFLICT (external_id, workspace_id) DO NOTHING
		`
		res, err := s.db.ExecContext(ctx, query, externalID, workspaceID, userID, linkedBy, at)
		if err != nil {
			return fmt.Errorf("failed to link chat identity: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			return nil
		}
		// Lost the race to a concurrent insert; fall through to the
		// guarded update.
	}

	query := `
		UPDATE chat_identities
		SET user_id = $1, linked_by = $2, linked_at = $3
		WHERE external_id = $4 AND workspace_id = $5
		  AND (user_id IS NULL OR user_id = $1)
	`
	res, err := s.db.ExecContext(ctx, query, userID, linkedBy, at, externalID, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to link chat identity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to link chat identity: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: chat identity %s/%s is linked to another user", ErrConflict, workspaceID, externalID)
	}
	return nil
}

// Unlink clears the user reference, returning the identity to the unlinked
// state. The row, its snapshot and its block flag survive.
func (s *Store) Unlink(ctx context.Context, externalID, workspaceID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chat_identities
		SET user_id = NULL, linked_by = NULL, linked_at = NULL
		WHERE external_id = $1 AND workspace_id = $2
	`, externalID, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to unlink chat identity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to unlink chat identity: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: chat identity %s/%s", ErrNotFound, workspaceID, externalID)
	}
	return nil
}

// SetBlocked sets or clears the block flag without touching the link state.
func (s *Store) SetBlocked(ctx context.Context, externalID, workspaceID string, blocked bool, reason string) error {
	if !blocked {
		reason = ""
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE chat_identities
		SET blocked = $1, block_reason = $2
		WHERE external_id = $3 AND workspace_id = $4
	`, blocked, reason, externalID, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to update block flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update block flag: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: chat identity %s/%s", ErrNotFound, workspaceID, externalID)
	}
	return nil
}

// ListUnlinkedWithEmail returns unlinked identities carrying a snapshot
// email, for the auto-link batch. Blocked identities are deliberately
// excluded: a block denies proxying regardless of link state, and quietly
// attaching a user to a blocked identity would only mask the block. An
// admin who unblocks the identity gets it picked up on the next sweep.
func (s *Store) ListUnlinkedWithEmail(ctx context.Context) ([]Identity, error) {
	query := `
		SELECT id, external_id, workspace_id, username, display_name, email, avatar_url,
		       user_id, linked_by, linked_at, blocked, block_reason, metadata, first_seen_at, last_seen_at
		FROM chat_identities
		WHERE user_id IS NULL AND NOT blocked AND email != ''
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list unlinked identities: %w", err)
	}
	defer rows.Close()

	var identities []Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat identity: %w", err)
		}
		identities = append(identities, *identity)
	}
	return identities, rows.Err()
}

// List returns identities for a workspace ordered by last activity.
func (s *Store) List(ctx context.Context, workspaceID string, limit, offset int) ([]Identity, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT id, external_id, workspace_id, username, display_name, email, avatar_url,
		       user_id, linked_by, linked_at, blocked, block_reason, metadata, first_seen_at, last_seen_at
		FROM chat_identities
		WHERE workspace_id = $1
		ORDER BY last_seen_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, workspaceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat identities: %w", err)
	}
	defer rows.Close()

	var identities []Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat identity: %w", err)
		}
		identities = append(identities, *identity)
	}
	return identities, rows.Err()
}

// UserStatusOf looks up the linked user's existence and activity.
func (s *Store) UserStatusOf(ctx context.Context, userID int64) (UserStatus, error) {
	var active bool
	err := s.db.QueryRowContext(ctx, `SELECT is_active FROM users WHERE id = $1`, userID).Scan(&active)
	if err == sql.ErrNoRows {
		return UserStatus{}, nil
	}
	if err != nil {
		return UserStatus{}, fmt.Errorf("failed to get user status: %w", err)
	}
	return UserStatus{Exists: true, Active: active}, nil
}

// ActiveUserByEmail finds an active user by case-insensitive email.
func (s *Store) ActiveUserByEmail(ctx context.Context, email string) (*int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM users WHERE LOWER(email) = LOWER($1) AND is_active`, email,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user by email: %w", err)
	}
	return &id, nil
}

func marshalMetadata(metadata map[string]any) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}

func scanIdentity(scanner interface {
	Scan(dest ...interface{}) error
}) (*Identity, error) {
	var identity Identity
	var userID, linkedBy sql.NullInt64
	var linkedAt sql.NullTime
	var metadataJSON string

	err := scanner.Scan(
		&identity.ID,
		&identity.ExternalID,
		&identity.WorkspaceID,
		&identity.Username,
		&identity.DisplayName,
		&identity.Email,
		&identity.AvatarURL,
		&userID,
		&linkedBy,
		&linkedAt,
		&identity.Blocked,
		&identity.BlockReason,
		&metadataJSON,
		&identity.FirstSeenAt,
		&identity.LastSeenAt,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		id := userID.Int64
		identity.UserID = &id
	}
	if linkedBy.Valid {
		id := linkedBy.Int64
		identity.LinkedBy = &id
	}
	if linkedAt.Valid {
		t := linkedAt.Time
		identity.LinkedAt = &t
	}
	if metadataJSON != "" && metadataJSON != "{}" {
		if err := json.Unmarshal([]byte(metadataJSON), &identity.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &identity, nil
}
