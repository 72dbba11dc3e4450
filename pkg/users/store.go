package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/dealdesk/pkg/auth"
)

// InviteTTL is how long an invite token stays redeemable.
const InviteTTL = 7 * 24 * time.Hour

// Store handles user and invite persistence.
type Store struct {
	db     *sql.DB
	tokens *auth.TokenGenerator
}

// NewStore creates a new user store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, tokens: auth.NewTokenGenerator()}
}

// Provision creates a user ahead of their first login. The account starts
// pending and inactive; Approve flips it live.
func (s *Store) Provision(ctx context.Context, req CreateUserRequest) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidState)
	}

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email) = $1)`, email,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check email uniqueness: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: user with email %s already exists", ErrConflict, email)
	}

	metadataJSON, err := marshalMetadata(req.Metadata)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO users (email, display_name, is_active, is_pending, profile_id, manager_id, metadata)
		VALUES ($1, $2, FALSE, TRUE, $3, $4, $5)
		RETURNING id, email, display_name, is_active, is_pending, profile_id, manager_id, metadata, last_login_at, created_at, updated_at
	`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, email, req.DisplayName, req.ProfileID, req.ManagerID, metadataJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}
	return user, nil
}

// Approve activates a pending user.
func (s *Store) Approve(ctx context.Context, id int64) (*User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.IsPending {
		return nil, fmt.Errorf("%w: user %d is not pending approval", ErrInvalidState, id)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE users SET is_active = TRUE, is_pending = FALSE, updated_at = CURRENT_TIMESTAMP WHERE id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to approve user: %w", err)
	}
	return s.Get(ctx, id)
}

// Deactivate turns a user off. Their rows stay; every authorization path
// denies them from the next evaluation on.
func (s *Store) Deactivate(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_active = FALSE, updated_at = CURRENT_TIMESTAMP WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	return nil
}

// Reactivate turns a deactivated user back on.
func (s *Store) Reactivate(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_active = TRUE, is_pending = FALSE, updated_at = CURRENT_TIMESTAMP WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to reactivate user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to reactivate user: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	return nil
}

// RecordLogin stamps the last login time.
func (s *Store) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = $1 WHERE id = $2`, at, id,
	)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	return nil
}

// Get retrieves a user by ID.
func (s *Store) Get(ctx context.Context, id int64) (*User, error) {
	query := `
		SELECT id, email, display_name, is_active, is_pending, profile_id, manager_id, metadata, last_login_at, created_at, updated_at
		FROM users WHERE id = $1
	`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by case-insensitive email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, email, display_name, is_active, is_pending, profile_id, manager_id, metadata, last_login_at, created_at, updated_at
		FROM users WHERE LOWER(email) = LOWER($1)
	`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user with email %s", ErrNotFound, email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// List returns users ordered by creation.
func (s *Store) List(ctx context.Context, limit, offset int) ([]User, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT id, email, display_name, is_active, is_pending, profile_id, manager_id, metadata, last_login_at, created_at, updated_at
		FROM users ORDER BY id LIMIT $1 OFFSET $2
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// SetManager updates a user's manager reference.
func (s *Store) SetManager(ctx context.Context, id int64, managerID *int64) error {
	if managerID != nil && *managerID == id {
		return fmt.Errorf("%w: user cannot be their own manager", ErrInvalidState)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET manager_id = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`, managerID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set manager: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set manager: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	return nil
}

// CreateInvite issues an invite token for an email address. The raw token is
// only returned here; redeem looks it up by hash.
func (s *Store) CreateInvite(ctx context.Context, email string, profileID *int64, invitedBy int64, at time.Time) (*Invite, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, "", fmt.Errorf("%w: email is required", ErrInvalidState)
	}

	token, tokenHash, tokenPrefix, err := s.tokens.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate invite token: %w", err)
	}

	query := `
		INSERT INTO user_invites (email, token_hash, token_prefix, profile_id, invited_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id, email, token_prefix, profile_id, invited_by, expires_at, accepted_at, created_at
	`
	expiresAt := at.Add(InviteTTL)
	invite, err := scanInvite(s.db.QueryRowContext(ctx, query, email, tokenHash, tokenPrefix, profileID, invitedBy, expiresAt))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create invite: %w", err)
	}
	// Overwrite the DB-computed expiry with the caller-supplied clock value
	// so the two never disagree across drivers.
	invite.ExpiresAt = expiresAt
	return invite, token, nil
}

// RedeemInvite accepts an invite by its raw token and returns the resulting
// user. An existing pending account for the email is approved; otherwise a
// fresh active account is created.
func (s *Store) RedeemInvite(ctx context.Context, token, displayName string, at time.Time) (*User, error) {
	tokenHash := s.tokens.HashToken(token)

	query := `
		SELECT id, email, token_prefix, profile_id, invited_by, expires_at, accepted_at, created_at
		FROM user_invites WHERE token_hash = $1
	`
	invite, err := scanInvite(s.db.QueryRowContext(ctx, query, tokenHash))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: invite", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up invite: %w", err)
	}
	if !invite.Live(at) {
		return nil, fmt.Errorf("%w: invite is expired or already accepted", ErrInvalidState)
	}

	// Guarded accept: a concurrent redeem of the same token loses here.
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_invites SET accepted_at = $1 WHERE id = $2 AND accepted_at IS NULL
	`, at, invite.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to accept invite: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return nil, fmt.Errorf("%w: invite is already accepted", ErrConflict)
	}

	existing, err := s.GetByEmail(ctx, invite.Email)
	if err == nil {
		if existing.IsPending {
			return s.Approve(ctx, existing.ID)
		}
		return existing, nil
	}

	insert := `
		INSERT INTO users (email, display_name, is_active, is_pending, profile_id, metadata)
		VALUES ($1, $2, TRUE, FALSE, $3, '{}')
		RETURNING id, email, display_name, is_active, is_pending, profile_id, manager_id, metadata, last_login_at, created_at, updated_at
	`
	user, err := scanUser(s.db.QueryRowContext(ctx, insert, invite.Email, displayName, invite.ProfileID))
	if err != nil {
		return nil, fmt.Errorf("failed to create user from invite: %w", err)
	}
	return user, nil
}

// ListInvites returns invites that have not been accepted, newest first.
func (s *Store) ListInvites(ctx context.Context) ([]Invite, error) {
	query := `
		SELECT id, email, token_prefix, profile_id, invited_by, expires_at, accepted_at, created_at
		FROM user_invites WHERE accepted_at IS NULL ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer rows.Close()

	var invites []Invite
	for rows.Next() {
		invite, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		invites = append(invites, *invite)
	}
	return invites, rows.Err()
}

// PurgeExpiredInvites deletes invites that expired before the cutoff and
// returns how many were removed.
func (s *Store) PurgeExpiredInvites(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_invites WHERE accepted_at IS NULL AND expires_at < $1`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge invites: %w", err)
	}
	return res.RowsAffected()
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

func scanUser(scanner interface {
	Scan(dest ...interface{}) error
}) (*User, error) {
	var user User
	var profileID, managerID sql.NullInt64
	var lastLoginAt sql.NullTime
	var metadataJSON string

	err := scanner.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.IsActive,
		&user.IsPending,
		&profileID,
		&managerID,
		&metadataJSON,
		&lastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if profileID.Valid {
		id := profileID.Int64
		user.ProfileID = &id
	}
	if managerID.Valid {
		id := managerID.Int64
		user.ManagerID = &id
	}
	if lastLoginAt.Valid {
		t := lastLoginAt.Time
		user.LastLoginAt = &t
	}
	if metadataJSON != "" && metadataJSON != "{}" {
		if err := json.Unmarshal([]byte(metadataJSON), &user.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &user, nil
}

func scanInvite(scanner interface {
	Scan(dest ...interface{}) error
}) (*Invite, error) {
	var invite Invite
	var profileID sql.NullInt64
	var acceptedAt sql.NullTime

	err := scanner.Scan(
		&invite.ID,
		&invite.Email,
		&invite.TokenPrefix,
		&profileID,
		&invite.InvitedBy,
		&invite.ExpiresAt,
		&acceptedAt,
		&invite.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if profileID.Valid {
		id := profileID.Int64
		invite.ProfileID = &id
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		invite.AcceptedAt = &t
	}
	return &invite, nil
}
