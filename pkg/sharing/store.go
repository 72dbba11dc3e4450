package sharing

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store handles sharing rule, record share and record registry persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new sharing store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateRule creates a sharing rule. The profile or team a classification
// names must exist: loosely-typed classifications that never match anything
// are rejected up front rather than silently granting nothing.
func (s *Store) CreateRule(ctx context.Context, rule *SharingRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.FromKind == FromProfile {
		if err := s.requireProfile(ctx, rule.FromProfile); err != nil {
			return err
		}
	}
	if rule.ToKind == ToProfile {
		if err := s.requireProfile(ctx, rule.ToProfile); err != nil {
			return err
		}
	}
	if rule.FromTeamID != nil {
		if err := s.requireTeam(ctx, *rule.FromTeamID); err != nil {
			return err
		}
	}
	if rule.ToTeamID != nil {
		if err := s.requireTeam(ctx, *rule.ToTeamID); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO sharing_rules (name, resource_type, from_kind, from_profile, from_team_id, to_kind, to_profile, to_team_id, level, is_active, created_at, updated_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`

	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, query,
		rule.Name,
		rule.ResourceType,
		rule.FromKind,
		rule.FromProfile,
		rule.FromTeamID,
		rule.ToKind,
		rule.ToProfile,
		rule.ToTeamID,
		string(rule.Level),
		rule.IsActive,
		now,
		now,
		rule.CreatedBy,
	).Scan(&rule.ID)
	if err != nil {
		return fmt.Errorf("failed to create sharing rule: %w", err)
	}

	rule.CreatedAt = now
	rule.UpdatedAt = now
	return nil
}

// GetRule retrieves a sharing rule by ID.
func (s *Store) GetRule(ctx context.Context, ruleID int64) (*SharingRule, error) {
	query := `
		SELECT id, name, resource_type, from_kind, from_profile, from_team_id, to_kind, to_profile, to_team_id, level, is_active, created_at, updated_at, created_by
		FROM sharing_rules
		WHERE id = $1
	`

	rule, err := scanRule(s.db.QueryRowContext(ctx, query, ruleID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: sharing rule %d", ErrNotFound, ruleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sharing rule: %w", err)
	}
	return rule, nil
}

// ListRules lists every sharing rule.
func (s *Store) ListRules(ctx context.Context) ([]SharingRule, error) {
	query := `
		SELECT id, name, resource_type, from_kind, from_profile, from_team_id, to_kind, to_profile, to_team_id, level, is_active, created_at, updated_at, created_by
		FROM sharing_rules
		ORDER BY resource_type, name
	`
	return s.queryRules(ctx, query)
}

// ActiveRules returns the active rules for one resource type.
func (s *Store) ActiveRules(ctx context.Context, resourceType string) ([]SharingRule, error) {
	query := `
		SELECT id, name, resource_type, from_kind, from_profile, from_team_id, to_kind, to_profile, to_team_id, level, is_active, created_at, updated_at, created_by
		FROM sharing_rules
		WHERE resource_type = $1 AND is_active
		ORDER BY id
	`
	return s.queryRules(ctx, query, resourceType)
}

// SetRuleActive toggles a rule without deleting its definition.
func (s *Store) SetRuleActive(ctx context.Context, ruleID int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sharing_rules SET is_active = $1, updated_at = $2 WHERE id = $3`,
		active, time.Now().UTC(), ruleID,
	)
	if err != nil {
		return fmt.Errorf("failed to update sharing rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update sharing rule: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: sharing rule %d", ErrNotFound, ruleID)
	}
	return nil
}

// DeleteRule removes a sharing rule.
func (s *Store) DeleteRule(ctx context.Context, ruleID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sharing_rules WHERE id = $1`, ruleID)
	if err != nil {
		return fmt.Errorf("failed to delete sharing rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete sharing rule: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: sharing rule %d", ErrNotFound, ruleID)
	}
	return nil
}

// CreateShare creates an ad-hoc record share. Malformed shares are rejected
// here, never tolerated at read time.
func (s *Store) CreateShare(ctx context.Context, share *RecordShare) error {
	if err := share.Validate(); err != nil {
		return err
	}
	if share.UserID != nil {
		if err := s.requireUser(ctx, *share.UserID); err != nil {
			return err
		}
	}
	if share.TeamID != nil {
		if err := s.requireTeam(ctx, *share.TeamID); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO record_shares (resource_type, record_id, user_id, team_id, level, granted_by, reason, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, query,
		share.ResourceType,
		share.RecordID,
		share.UserID,
		share.TeamID,
		string(share.Level),
		share.GrantedBy,
		share.Reason,
		share.ExpiresAt,
		now,
	).Scan(&share.ID)
	if err != nil {
		return fmt.Errorf("failed to create record share: %w", err)
	}

	share.CreatedAt = now
	return nil
}

// RevokeShare removes a record share.
func (s *Store) RevokeShare(ctx context.Context, shareID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM record_shares WHERE id = $1`, shareID)
	if err != nil {
		return fmt.Errorf("failed to revoke record share: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to revoke record share: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: record share %d", ErrNotFound, shareID)
	}
	return nil
}

// GetShare retrieves a record share by ID.
func (s *Store) GetShare(ctx context.Context, shareID int64) (*RecordShare, error) {
	query := `
		SELECT id, resource_type, record_id, user_id, team_id, level, granted_by, reason, expires_at, created_at
		FROM record_shares
		WHERE id = $1
	`
	share, err := scanShare(s.db.QueryRowContext(ctx, query, shareID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: record share %d", ErrNotFound, shareID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record share: %w", err)
	}
	return share, nil
}

// LiveShares returns the non-expired shares on one record at the given
// instant.
func (s *Store) LiveShares(ctx context.Context, resourceType, recordID string, at time.Time) ([]RecordShare, error) {
	query := `
		SELECT id, resource_type, record_id, user_id, team_id, level, granted_by, reason, expires_at, created_at
		FROM record_shares
		WHERE resource_type = $1
		  AND record_id = $2
		  AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, resourceType, recordID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to list record shares: %w", err)
	}
	defer rows.Close()

	var shares []RecordShare
	for rows.Next() {
		share, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record share: %w", err)
		}
		shares = append(shares, *share)
	}
	return shares, rows.Err()
}

// ListSharesForRecord returns every share on a record, expired included, for
// administrative listings.
func (s *Store) ListSharesForRecord(ctx context.Context, resourceType, recordID string) ([]RecordShare, error) {
	query := `
		SELECT id, resource_type, record_id, user_id, team_id, level, granted_by, reason, expires_at, created_at
		FROM record_shares
		WHERE resource_type = $1 AND record_id = $2
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, resourceType, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list record shares: %w", err)
	}
	defer rows.Close()

	var shares []RecordShare
	for rows.Next() {
		share, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record share: %w", err)
		}
		shares = append(shares, *share)
	}
	return shares, rows.Err()
}

// RegisterRecord upserts a record's ownership metadata. Called by the
// document CRUD layer when records are created or reassigned.
func (s *Store) RegisterRecord(ctx context.Context, ref *RecordRef) error {
	if ref.ResourceType == "" || ref.RecordID == "" {
		return fmt.Errorf("%w: record ref requires a resource type and record id", ErrInvalidState)
	}

	query := `
		INSERT INTO record_registry (resource_type, record_id, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (resource_type, record_id)
		DO UPDATE SET owner_id = EXCLUDED.owner_id, updated_at = EXCLUDED.updated_at
	`

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, query, ref.ResourceType, ref.RecordID, ref.OwnerID, now); err != nil {
		return fmt.Errorf("failed to register record: %w", err)
	}
	ref.UpdatedAt = now
	return nil
}

// RecordOwner returns the recorded owner of a record, or nil when the record
// is unregistered or ownerless. Absence is an input to the decision, not an
// error.
func (s *Store) RecordOwner(ctx context.Context, resourceType, recordID string) (*int64, error) {
	var owner sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT owner_id FROM record_registry WHERE resource_type = $1 AND record_id = $2`,
		resourceType, recordID,
	).Scan(&owner)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record owner: %w", err)
	}
	if !owner.Valid {
		return nil, nil
	}
	id := owner.Int64
	return &id, nil
}

// ProfileNameOf returns the user's profile name, or "" when the user has no
// profile.
func (s *Store) ProfileNameOf(ctx context.Context, userID int64) (string, error) {
	var name sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT p.name
		FROM users u
		LEFT JOIN profiles p ON p.id = u.profile_id
		WHERE u.id = $1
	`, userID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get user profile: %w", err)
	}
	if !name.Valid {
		return "", nil
	}
	return name.String, nil
}

func (s *Store) queryRules(ctx context.Context, query string, args ...interface{}) ([]SharingRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sharing rules: %w", err)
	}
	defer rows.Close()

	var rules []SharingRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sharing rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

func (s *Store) requireProfile(ctx context.Context, name string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM profiles WHERE name = $1)`, name).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check profile: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: profile %q", ErrNotFound, name)
	}
	return nil
}

func (s *Store) requireTeam(ctx context.Context, teamID int64) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM companies WHERE id = $1)`, teamID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check team: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: team %d", ErrNotFound, teamID)
	}
	return nil
}

func (s *Store) requireUser(ctx context.Context, userID int64) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	return nil
}

func scanRule(scanner interface {
	Scan(dest ...interface{}) error
}) (*SharingRule, error) {
	var rule SharingRule
	var fromProfile, toProfile sql.NullString
	var fromTeamID, toTeamID, createdBy sql.NullInt64
	var level string

	err := scanner.Scan(
		&rule.ID,
		&rule.Name,
		&rule.ResourceType,
		&rule.FromKind,
		&fromProfile,
		&fromTeamID,
		&rule.ToKind,
		&toProfile,
		&toTeamID,
		&level,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
		&createdBy,
	)
	if err != nil {
		return nil, err
	}

	rule.Level = AccessLevel(level)
	if fromProfile.Valid {
		rule.FromProfile = fromProfile.String
	}
	if toProfile.Valid {
		rule.ToProfile = toProfile.String
	}
	if fromTeamID.Valid {
		id := fromTeamID.Int64
		rule.FromTeamID = &id
	}
	if toTeamID.Valid {
		id := toTeamID.Int64
		rule.ToTeamID = &id
	}
	if createdBy.Valid {
		id := createdBy.Int64
		rule.CreatedBy = &id
	}
	return &rule, nil
}

func scanShare(scanner interface {
	Scan(dest ...interface{}) error
}) (*RecordShare, error) {
	var share RecordShare
	var userID, teamID sql.NullInt64
	var level string
	var reason sql.NullString
	var expiresAt sql.NullTime

	err := scanner.Scan(
		&share.ID,
		&share.ResourceType,
		&share.RecordID,
		&userID,
		&teamID,
		&level,
		&share.GrantedBy,
		&reason,
		&expiresAt,
		&share.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	share.Level = AccessLevel(level)
	if userID.Valid {
		id := userID.Int64
		share.UserID = &id
	}
	if teamID.Valid {
		id := teamID.Int64
		share.TeamID = &id
	}
	if reason.Valid {
		share.Reason = reason.String
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		share.ExpiresAt = &t
	}
	return &share, nil
}
