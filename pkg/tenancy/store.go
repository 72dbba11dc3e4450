package tenancy

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store handles organizational unit persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new tenancy store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateCompany creates a new organizational unit.
func (s *Store) CreateCompany(ctx context.Context, company *Company) error {
	if err := company.Validate(); err != nil {
		return err
	}
	if company.ParentID != nil {
		if _, err := s.GetCompany(ctx, *company.ParentID); err != nil {
			return err
		}
	}
	if company.Kind == KindLeaf {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM companies WHERE partition_key = $1)`,
			company.PartitionKey,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check partition key: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: partition key %q already in use", ErrConflict, company.PartitionKey)
		}
	}

	query := `
		INSERT INTO companies (name, display_name, parent_id, kind, partition_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	now := time.Now().UTC()
	var partitionKey sql.NullString
	if company.PartitionKey != "" {
		partitionKey = sql.NullString{String: company.PartitionKey, Valid: true}
	}
	err := s.db.QueryRowContext(ctx, query,
		company.Name,
		company.DisplayName,
		company.ParentID,
		string(company.Kind),
		partitionKey,
		now,
		now,
	).Scan(&company.ID)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}

	company.CreatedAt = now
	company.UpdatedAt = now
	return nil
}

// GetCompany retrieves a unit by ID.
func (s *Store) GetCompany(ctx context.Context, companyID int64) (*Company, error) {
	query := `
		SELECT id, name, display_name, parent_id, kind, partition_key, created_at, updated_at
		FROM companies
		WHERE id = $1
	`

	company, err := scanCompany(s.db.QueryRowContext(ctx, query, companyID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: company %d", ErrNotFound, companyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return company, nil
}

// ListCompanies returns every unit ordered by name.
func (s *Store) ListCompanies(ctx context.Context) ([]Company, error) {
	query := `
		SELECT id, name, display_name, parent_id, kind, partition_key, created_at, updated_at
		FROM companies
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var companies []Company
	for rows.Next() {
		company, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, *company)
	}
	return companies, rows.Err()
}

// UpdateCompany updates display fields and reparenting. Kind and partition
// key are fixed at creation: a leaf's partition outlives any rename.
func (s *Store) UpdateCompany(ctx context.Context, company *Company) error {
	existing, err := s.GetCompany(ctx, company.ID)
	if err != nil {
		return err
	}
	if company.Kind != existing.Kind || company.PartitionKey != existing.PartitionKey {
		return fmt.Errorf("%w: unit kind and partition key are immutable", ErrInvalidState)
	}
	if company.ParentID != nil {
		if *company.ParentID == company.ID {
			return fmt.Errorf("%w: unit cannot be its own parent", ErrInvalidState)
		}
		if _, err := s.GetCompany(ctx, *company.ParentID); err != nil {
			return err
		}
	}

	query := `
		UPDATE companies
		SET name = $1, display_name = $2, parent_id = $3, updated_at = $4
		WHERE id = $5
	`
	company.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, query,
		company.Name,
		company.DisplayName,
		company.ParentID,
		company.UpdatedAt,
		company.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update company: %w", err)
	}
	return nil
}

// DeleteCompany removes a unit with no children and no assignments.
func (s *Store) DeleteCompany(ctx context.Context, companyID int64) error {
	if _, err := s.GetCompany(ctx, companyID); err != nil {
		return err
	}

	var children int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM companies WHERE parent_id = $1`, companyID).Scan(&children); err != nil {
		return fmt.Errorf("failed to count children: %w", err)
	}
	if children > 0 {
		return fmt.Errorf("%w: company %d has %d child unit(s)", ErrConflict, companyID, children)
	}

	var assigned int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM user_companies WHERE company_id = $1`, companyID).Scan(&assigned); err != nil {
		return fmt.Errorf("failed to count assignments: %w", err)
	}
	if assigned > 0 {
		return fmt.Errorf("%w: company %d has %d assigned user(s)", ErrConflict, companyID, assigned)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM companies WHERE id = $1`, companyID); err != nil {
		return fmt.Errorf("failed to delete company: %w", err)
	}
	return nil
}

// Tree loads the full unit tree. Implements TreeSource.
func (s *Store) Tree(ctx context.Context) (*Tree, error) {
	companies, err := s.ListCompanies(ctx)
	if err != nil {
		return nil, err
	}
	return NewTree(companies), nil
}

// AssignUser assigns a user to a unit. Assigning twice is a no-op.
func (s *Store) AssignUser(ctx context.Context, assignment *Assignment) error {
	if _, err := s.GetCompany(ctx, assignment.CompanyID); err != nil {
		return err
	}

	var existingID sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM user_companies WHERE user_id = $1 AND company_id = $2`,
		assignment.UserID, assignment.CompanyID,
	).Scan(&existingID)
	if err == nil && existingID.Valid {
		assignment.ID = existingID.Int64
		return nil
	}
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check assignment: %w", err)
	}

	query := `
		INSERT INTO user_companies (user_id, company_id, added_by, added_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	now := time.Now().UTC()
	err = s.db.QueryRowContext(ctx, query,
		assignment.UserID,
		assignment.CompanyID,
		assignment.AddedBy,
		now,
	).Scan(&assignment.ID)
	if err != nil {
		return fmt.Errorf("failed to assign user to company: %w", err)
	}
	assignment.AddedAt = now
	return nil
}

// UnassignUser removes a user-unit assignment.
func (s *Store) UnassignUser(ctx context.Context, userID, companyID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_companies WHERE user_id = $1 AND company_id = $2`,
		userID, companyID,
	)
	if err != nil {
		return fmt.Errorf("failed to unassign user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to unassign user: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: user %d is not assigned to company %d", ErrNotFound, userID, companyID)
	}
	return nil
}

// AssignedCompanyIDs returns the units a user is directly assigned to.
// Implements AssignmentSource.
func (s *Store) AssignedCompanyIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT company_id FROM user_companies WHERE user_id = $1 ORDER BY company_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user assignments: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AssignedUsers returns the user ids directly assigned to a unit.
func (s *Store) AssignedUsers(ctx context.Context, companyID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM user_companies WHERE company_id = $1 ORDER BY user_id`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get company members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanCompany(scanner interface {
	Scan(dest ...interface{}) error
}) (*Company, error) {
	var company Company
	var parentID sql.NullInt64
	var kind string
	var partitionKey sql.NullString

	err := scanner.Scan(
		&company.ID,
		&company.Name,
		&company.DisplayName,
		&parentID,
		&kind,
		&partitionKey,
		&company.CreatedAt,
		&company.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	company.Kind = CompanyKind(kind)
	if parentID.Valid {
		id := parentID.Int64
		company.ParentID = &id
	}
	if partitionKey.Valid {
		company.PartitionKey = partitionKey.String
	}
	return &company, nil
}
