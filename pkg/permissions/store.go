package permissions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Store handles profile and permission set persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new permissions store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateProfile creates a new profile. The name must be unique.
func (s *Store) CreateProfile(ctx context.Context, profile *Profile) error {
	scopesJSON, err := json.Marshal(profile.Scopes)
	if err != nil {
		return fmt.Errorf("failed to marshal scopes: %w", err)
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM profiles WHERE name = $1)`, profile.Name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check profile name: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: profile %q already exists", ErrConflict, profile.Name)
	}

	query := `
		INSERT INTO profiles (name, display_name, description, is_system, scopes, created_at, updated_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	now := time.Now().UTC()
	err = s.db.QueryRowContext(ctx, query,
		profile.Name,
		profile.DisplayName,
		profile.Description,
		profile.IsSystem,
		string(scopesJSON),
		now,
		now,
		profile.CreatedBy,
	).Scan(&profile.ID)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	profile.CreatedAt = now
	profile.UpdatedAt = now
	return nil
}

// GetProfile retrieves a profile by ID.
func (s *Store) GetProfile(ctx context.Context, profileID int64) (*Profile, error) {
	query := `
		SELECT id, name, display_name, description, is_system, scopes, created_at, updated_at, created_by
		FROM profiles
		WHERE id = $1
	`
	return s.scanProfileRow(s.db.QueryRowContext(ctx, query, profileID), fmt.Sprintf("profile %d", profileID))
}

// GetProfileByName retrieves a profile by its unique name.
func (s *Store) GetProfileByName(ctx context.Context, name string) (*Profile, error) {
	query := `
		SELECT id, name, display_name, description, is_system, scopes, created_at, updated_at, created_by
		FROM profiles
		WHERE name = $1
	`
	return s.scanProfileRow(s.db.QueryRowContext(ctx, query, name), fmt.Sprintf("profile %q", name))
}

// ListProfiles lists all profiles, system ones first.
func (s *Store) ListProfiles(ctx context.Context) ([]Profile, error) {
	query := `
		SELECT id, name, display_name, description, is_system, scopes, created_at, updated_at, created_by
		FROM profiles
		ORDER BY is_system DESC, name ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *profile)
	}
	return profiles, rows.Err()
}

// UpdateProfile updates a non-system profile's display fields and scopes.
func (s *Store) UpdateProfile(ctx context.Context, profile *Profile) error {
	existing, err := s.GetProfile(ctx, profile.ID)
	if err != nil {
		return err
	}
	if existing.IsSystem {
		return fmt.Errorf("%w: system profile %q is immutable", ErrInvalidState, existing.Name)
	}

	scopesJSON, err := json.Marshal(profile.Scopes)
	if err != nil {
		return fmt.Errorf("failed to marshal scopes: %w", err)
	}

	query := `
		UPDATE profiles
		SET display_name = $1, description = $2, scopes = $3, updated_at = $4
		WHERE id = $5
	`
	profile.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, query,
		profile.DisplayName,
		profile.Description,
		string(scopesJSON),
		profile.UpdatedAt,
		profile.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

// DeleteProfile deletes a non-system profile that no user is assigned to.
func (s *Store) DeleteProfile(ctx context.Context, profileID int64) error {
	profile, err := s.GetProfile(ctx, profileID)
	if err != nil {
		return err
	}
	if profile.IsSystem {
		return fmt.Errorf("%w: system profile %q is immutable", ErrInvalidState, profile.Name)
	}

	var assigned int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE profile_id = $1`, profileID).Scan(&assigned)
	if err != nil {
		return fmt.Errorf("failed to count profile assignments: %w", err)
	}
	if assigned > 0 {
		return fmt.Errorf("%w: profile %q is assigned to %d user(s)", ErrConflict, profile.Name, assigned)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, profileID); err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}

// AssignProfile reassigns a user's profile. This is a mutation of the user
// row, not a new entity; the previous assignment is recoverable only through
// the audit trail.
func (s *Store) AssignProfile(ctx context.Context, userID, profileID int64) error {
	if _, err := s.GetProfile(ctx, profileID); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET profile_id = $1, updated_at = $2 WHERE id = $3`,
		profileID, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to assign profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to assign profile: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	return nil
}

// CreatePermissionSet creates a new permission set. The name must be unique.
func (s *Store) CreatePermissionSet(ctx context.Context, set *PermissionSet) error {
	scopesJSON, err := json.Marshal(set.Scopes)
	if err != nil {
		return fmt.Errorf("failed to marshal scopes: %w", err)
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM permission_sets WHERE name = $1)`, set.Name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check permission set name: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: permission set %q already exists", ErrConflict, set.Name)
	}

	query := `
		INSERT INTO permission_sets (name, display_name, description, scopes, created_at, updated_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	now := time.Now().UTC()
	err = s.db.QueryRowContext(ctx, query,
		set.Name,
		set.DisplayName,
		set.Description,
		string(scopesJSON),
		now,
		now,
		set.CreatedBy,
	).Scan(&set.ID)
	if err != nil {
		return fmt.Errorf("failed to create permission set: %w", err)
	}

	set.CreatedAt = now
	set.UpdatedAt = now
	return nil
}

// GetPermissionSet retrieves a permission set by ID.
func (s *Store) GetPermissionSet(ctx context.Context, setID int64) (*PermissionSet, error) {
	query := `
		SELECT id, name, display_name, description, scopes, created_at, updated_at, created_by
		FROM permission_sets
		WHERE id = $1
	`

	var set PermissionSet
	var scopesJSON string
	var createdBy sql.NullInt64

	err := s.db.QueryRowContext(ctx, query, setID).Scan(
		&set.ID,
		&set.Name,
		&set.DisplayName,
		&set.Description,
		&scopesJSON,
		&set.CreatedAt,
		&set.UpdatedAt,
		&createdBy,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: permission set %d", ErrNotFound, setID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission set: %w", err)
	}

	if err := json.Unmarshal([]byte(scopesJSON), &set.Scopes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scopes: %w", err)
	}
	if createdBy.Valid {
		id := createdBy.Int64
		set.CreatedBy = &id
	}
	return &set, nil
}

// ListPermissionSets lists all permission sets by name.
func (s *Store) ListPermissionSets(ctx context.Context) ([]PermissionSet, error) {
	query := `
		SELECT id, name, display_name, description, scopes, created_at, updated_at, created_by
		FROM permission_sets
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list permission sets: %w", err)
	}
	defer rows.Close()

	var sets []PermissionSet
	for rows.Next() {
		var set PermissionSet
		var scopesJSON string
		var createdBy sql.NullInt64

		err := rows.Scan(
			&set.ID,
			&set.Name,
			&set.DisplayName,
			&set.Description,
			&scopesJSON,
			&set.CreatedAt,
			&set.UpdatedAt,
			&createdBy,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission set: %w", err)
		}
		if err := json.Unmarshal([]byte(scopesJSON), &set.Scopes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scopes: %w", err)
		}
		if createdBy.Valid {
			id := createdBy.Int64
			set.CreatedBy = &id
		}
		sets = append(sets, set)
	}
	return sets, rows.Err()
}

// DeletePermissionSet removes a permission set and all of its assignments.
func (s *Store) DeletePermissionSet(ctx context.Context, setID int64) error {
	if _, err := s.GetPermissionSet(ctx, setID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_permission_sets WHERE set_id = $1`, setID); err != nil {
		return fmt.Errorf("failed to delete set assignments: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM permission_sets WHERE id = $1`, setID); err != nil {
		return fmt.Errorf("failed to delete permission set: %w", err)
	}
	return nil
}

// AssignSet assigns a permission set to a user. Multiple sets may be active
// for the same user at once.
func (s *Store) AssignSet(ctx context.Context, assignment *SetAssignment) error {
	if _, err := s.GetPermissionSet(ctx, assignment.SetID); err != nil {
		return err
	}
	if err := s.requireUser(ctx, assignment.UserID); err != nil {
		return err
	}

	query := `
		INSERT INTO user_permission_sets (set_id, user_id, granted_by, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, query,
		assignment.SetID,
		assignment.UserID,
		assignment.GrantedBy,
		now,
		assignment.ExpiresAt,
	).Scan(&assignment.ID)
	if err != nil {
		return fmt.Errorf("failed to assign permission set: %w", err)
	}

	assignment.GrantedAt = now
	return nil
}

// RevokeSet removes one set assignment.
func (s *Store) RevokeSet(ctx context.Context, assignmentID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_permission_sets WHERE id = $1`, assignmentID)
	if err != nil {
		return fmt.Errorf("failed to revoke permission set: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to revoke permission set: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: set assignment %d", ErrNotFound, assignmentID)
	}
	return nil
}

// ListAssignments returns every assignment for a user, including expired
// ones. Callers filter with SetAssignment.Effective.
func (s *Store) ListAssignments(ctx context.Context, userID int64) ([]SetAssignment, error) {
	query := `
		SELECT id, set_id, user_id, granted_by, granted_at, expires_at
		FROM user_permission_sets
		WHERE user_id = $1
		ORDER BY granted_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list set assignments: %w", err)
	}
	defer rows.Close()

	var assignments []SetAssignment
	for rows.Next() {
		var a SetAssignment
		var grantedBy sql.NullInt64
		var expiresAt sql.NullTime

		if err := rows.Scan(&a.ID, &a.SetID, &a.UserID, &grantedBy, &a.GrantedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan set assignment: %w", err)
		}
		if grantedBy.Valid {
			id := grantedBy.Int64
			a.GrantedBy = &id
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			a.ExpiresAt = &t
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// ActiveSetScopes returns the scopes contributed by every set assignment
// effective at the given instant.
func (s *Store) ActiveSetScopes(ctx context.Context, userID int64, at time.Time) ([]Scope, error) {
	query := `
		SELECT ps.scopes
		FROM permission_sets ps
		JOIN user_permission_sets ups ON ups.set_id = ps.id
		WHERE ups.user_id = $1
		  AND (ups.expires_at IS NULL OR ups.expires_at > $2)
	`

	rows, err := s.db.QueryContext(ctx, query, userID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to get active set scopes: %w", err)
	}
	defer rows.Close()

	var scopes []Scope
	for rows.Next() {
		var scopesJSON string
		if err := rows.Scan(&scopesJSON); err != nil {
			return nil, fmt.Errorf("failed to scan set scopes: %w", err)
		}
		var setScopes []Scope
		if err := json.Unmarshal([]byte(scopesJSON), &setScopes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal set scopes: %w", err)
		}
		scopes = append(scopes, setScopes...)
	}
	return scopes, rows.Err()
}

// EarliestSetExpiry returns the soonest future expiration among the user's
// assignments, or nil when all are permanent. Used to bound cache lifetimes.
func (s *Store) EarliestSetExpiry(ctx context.Context, userID int64, at time.Time) (*time.Time, error) {
	query := `
		SELECT MIN(expires_at)
		FROM user_permission_sets
		WHERE user_id = $1 AND expires_at > $2
	`

	var earliest sql.NullTime
	if err := s.db.QueryRowContext(ctx, query, userID, at).Scan(&earliest); err != nil {
		return nil, fmt.Errorf("failed to get earliest set expiry: %w", err)
	}
	if !earliest.Valid {
		return nil, nil
	}
	t := earliest.Time
	return &t, nil
}

// UserProfileID returns the user's current profile assignment, nil when the
// user has no profile.
func (s *Store) UserProfileID(ctx context.Context, userID int64) (*int64, error) {
	ua, err := s.getUserAccess(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ua.ProfileID.Valid {
		return nil, nil
	}
	id := ua.ProfileID.Int64
	return &id, nil
}

// userAccess is the slice of the user row the resolver needs.
type userAccess struct {
	Active    bool
	ProfileID sql.NullInt64
}

func (s *Store) getUserAccess(ctx context.Context, userID int64) (*userAccess, error) {
	var ua userAccess
	err := s.db.QueryRowContext(ctx,
		`SELECT is_active, profile_id FROM users WHERE id = $1`, userID,
	).Scan(&ua.Active, &ua.ProfileID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &ua, nil
}

func (s *Store) requireUser(ctx context.Context, userID int64) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	return nil
}

func (s *Store) scanProfileRow(row *sql.Row, ref string) (*Profile, error) {
	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", ref, err)
	}
	return profile, nil
}

// scanProfile scans a profile from a row or rows cursor.
func scanProfile(scanner interface {
	Scan(dest ...interface{}) error
}) (*Profile, error) {
	var profile Profile
	var scopesJSON string
	var createdBy sql.NullInt64

	err := scanner.Scan(
		&profile.ID,
		&profile.Name,
		&profile.DisplayName,
		&profile.Description,
		&profile.IsSystem,
		&scopesJSON,
		&profile.CreatedAt,
		&profile.UpdatedAt,
		&createdBy,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(scopesJSON), &profile.Scopes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scopes: %w", err)
	}
	if createdBy.Valid {
		id := createdBy.Int64
		profile.CreatedBy = &id
	}
	return &profile, nil
}

// SeedBuiltInProfiles inserts any missing system profiles. Safe to run on
// every startup.
func SeedBuiltInProfiles(ctx context.Context, store *Store) error {
	for _, profile := range BuiltInProfiles() {
		p := profile
		err := store.CreateProfile(ctx, &p)
		if err != nil && !errors.Is(err, ErrConflict) {
			return fmt.Errorf("failed to seed profile %q: %w", p.Name, err)
		}
	}
	return nil
}
