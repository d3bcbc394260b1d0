// access_token_repository.go implements AccessTokenRepository. Token rows are inserted once,
// read on every authenticated request, and only ever updated to set revoked_at.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hookrelay/hookrelay/internal/db/models"
)

// AccessTokenRepository handles access token database operations
type AccessTokenRepository struct {
	db *sql.DB
}

// NewAccessTokenRepository creates a new AccessTokenRepository
func NewAccessTokenRepository(db *sql.DB) *AccessTokenRepository {
	return &AccessTokenRepository{db: db}
}

// CreateAccessToken inserts a token record. The ID is the jti chosen by the issuer.
func (r *AccessTokenRepository) CreateAccessToken(ctx context.Context, token *models.AccessToken) error {
	query := `
		INSERT INTO access_tokens (id, user_id, scope, issued_at, expires_at, revoked_at, user_ip)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.Scope,
		token.IssuedAt,
		token.ExpiresAt,
		token.RevokedAt,
		token.UserIP,
	)

	return err
}

// GetAccessToken retrieves a token record by jti
func (r *AccessTokenRepository) GetAccessToken(ctx context.Context, id string) (*models.AccessToken, error) {
	query := `
		SELECT id, user_id, scope, issued_at, expires_at, revoked_at, user_ip
		FROM access_tokens
		WHERE id = $1
	`

	token := &models.AccessToken{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&token.ID,
		&token.UserID,
		&token.Scope,
		&token.IssuedAt,
		&token.ExpiresAt,
		&token.RevokedAt,
		&token.UserIP,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return token, nil
}

// RevokeAccessToken sets revoked_at on a token that is not yet revoked.
// It reports whether a row was changed.
func (r *AccessTokenRepository) RevokeAccessToken(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE access_tokens
		SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return rows > 0, nil
}

// CountActiveAccessTokens returns the number of tokens that are neither revoked nor expired at now
func (r *AccessTokenRepository) CountActiveAccessTokens(ctx context.Context, now time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM access_tokens
		WHERE revoked_at IS NULL AND (expires_at IS NULL OR expires_at > $1)
	`

	var count int
	err := r.db.QueryRowContext(ctx, query, now).Scan(&count)
	return count, err
}
