package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TokenStore persists and validates API tokens.
type TokenStore struct {
	db     *sql.DB
	tokens *TokenGenerator
}

// NewTokenStore creates a new token store.
func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db, tokens: NewTokenGenerator()}
}

// Create issues a token for a user. The raw token is returned exactly once.
func (s *TokenStore) Create(ctx context.Context, userID int64, name string, expiresAt *time.Time) (*APIToken, string, error) {
	token, tokenHash, tokenPrefix, err := s.tokens.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	query := `
		INSERT INTO api_tokens (user_id, token_hash, token_prefix, name, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, token_prefix, name, expires_at, last_used_at, created_at
	`
	var stored APIToken
	var storedExpires, lastUsed sql.NullTime
	err = s.db.QueryRowContext(ctx, query, userID, tokenHash, tokenPrefix, name, expiresAt).Scan(
		&stored.ID, &stored.UserID, &stored.TokenPrefix, &stored.Name,
		&storedExpires, &lastUsed, &stored.CreatedAt,
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create token: %w", err)
	}
	if storedExpires.Valid {
		t := storedExpires.Time
		stored.ExpiresAt = &t
	}
	return &stored, token, nil
}

// Validate resolves a bearer token to its owning user. Unknown, revoked and
// expired tokens all return ErrInvalidToken without distinguishing why.
func (s *TokenStore) Validate(ctx context.Context, token string, at time.Time) (*AuthContext, error) {
	if err := s.tokens.ValidateTokenFormat(token); err != nil {
		return nil, ErrInvalidToken
	}
	tokenHash := s.tokens.HashToken(token)

	query := `
		SELECT t.id, t.user_id, t.expires_at, t.revoked_at
		FROM api_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = $1 AND u.is_active
	`
	var tokenID, userID int64
	var expiresAt, revokedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&tokenID, &userID, &expiresAt, &revokedAt)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}
	if revokedAt.Valid {
		return nil, ErrInvalidToken
	}
	if expiresAt.Valid && !expiresAt.Time.After(at) {
		return nil, ErrInvalidToken
	}

	// Last-used stamping is advisory; a failure does not fail the request.
	_, _ = s.db.ExecContext(ctx, `UPDATE api_tokens SET last_used_at = $1 WHERE id = $2`, at, tokenID)

	return &AuthContext{UserID: userID, TokenID: tokenID}, nil
}

// Revoke marks a token unusable.
func (s *TokenStore) Revoke(ctx context.Context, tokenID int64, revokedBy int64, reason string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE api_tokens SET revoked_at = $1, revoked_by = $2, revoke_reason = $3
		WHERE id = $4 AND revoked_at IS NULL
	`, at, revokedBy, reason, tokenID)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if n == 0 {
		return ErrInvalidToken
	}
	return nil
}

// ListForUser returns a user's tokens, newest first.
func (s *TokenStore) ListForUser(ctx context.Context, userID int64) ([]APIToken, error) {
	query := `
		SELECT id, user_id, token_prefix, name, expires_at, last_used_at, created_at, revoked_at, revoked_by, revoke_reason
		FROM api_tokens WHERE user_id = $1 ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []APIToken
	for rows.Next() {
		var t APIToken
		var expiresAt, lastUsedAt, revokedAt sql.NullTime
		var revokedBy sql.NullInt64
		var revokeReason sql.NullString
		err := rows.Scan(&t.ID, &t.UserID, &t.TokenPrefix, &t.Name, &expiresAt, &lastUsedAt, &t.CreatedAt, &revokedAt, &revokedBy, &revokeReason)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		if expiresAt.Valid {
			v := expiresAt.Time
			t.ExpiresAt = &v
		}
		if lastUsedAt.Valid {
			v := lastUsedAt.Time
			t.LastUsedAt = &v
		}
		if revokedAt.Valid {
			v := revokedAt.Time
			t.RevokedAt = &v
		}
		if revokedBy.Valid {
			v := revokedBy.Int64
			t.RevokedBy = &v
		}
		if revokeReason.Valid {
			t.RevokeReason = revokeReason.String
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
