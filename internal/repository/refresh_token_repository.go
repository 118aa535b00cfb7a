package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prperemyshlev/auth-session-service/internal/domain"
)

const refreshTokenColumns = `id, user_id, verify_hash, lookup_hash, device_name, user_agent,
		ip_address, created_at, expires_at, revoked`

// refreshTokenRepository implements RefreshTokenRepository interface
type refreshTokenRepository struct {
	db DBTX
}

// NewRefreshTokenRepository creates a new refresh token repository
func NewRefreshTokenRepository(db DBTX) RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

// Insert stores a new refresh token record
func (r *refreshTokenRepository) Insert(ctx context.Context, token *domain.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (user_id, verify_hash, lookup_hash, device_name, user_agent,
			ip_address, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		token.AccountPublicID,
		token.VerifyHash,
		token.LookupHash,
		token.DeviceName,
		token.UserAgent,
		token.IPAddress,
		token.CreatedAt,
		token.ExpiresAt,
	).Scan(&token.ID)
	if err != nil {
		if pqErr, ok := pqError(err); ok && pqErr.Code == pqUniqueViolation {
			return fmt.Errorf("refresh token with lookup hash already exists: %w", ErrDuplicateToken)
		}
		return fmt.Errorf("failed to create refresh token: %w", err)
	}

	return nil
}

// FindByLookupHash retrieves a refresh token by its lookup hash
func (r *refreshTokenRepository) FindByLookupHash(ctx context.Context, lookupHash string) (*domain.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE lookup_hash = $1`
	return r.get(ctx, query, lookupHash)
}

// LockByLookupHash retrieves a refresh token by its lookup hash FOR UPDATE
func (r *refreshTokenRepository) LockByLookupHash(ctx context.Context, lookupHash string) (*domain.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE lookup_hash = $1 FOR UPDATE`
	return r.get(ctx, query, lookupHash)
}

func (r *refreshTokenRepository) get(ctx context.Context, query, lookupHash string) (*domain.RefreshToken, error) {
	token := &domain.RefreshToken{}
	var deviceName, userAgent, ipAddress sql.NullString

	err := r.db.QueryRowContext(ctx, query, lookupHash).Scan(
		&token.ID,
		&token.AccountPublicID,
		&token.VerifyHash,
		&token.LookupHash,
		&deviceName,
		&userAgent,
		&ipAddress,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.Revoked,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("refresh token not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	if deviceName.Valid {
		token.DeviceName = &deviceName.String
	}
	if userAgent.Valid {
		token.UserAgent = &userAgent.String
	}
	if ipAddress.Valid {
		token.IPAddress = &ipAddress.String
	}

	return token, nil
}

// UpdateHashes overwrites the hash pair of a record in place; expiry is untouched
func (r *refreshTokenRepository) UpdateHashes(ctx context.Context, id int64, verifyHash, lookupHash string) error {
	query := `UPDATE refresh_tokens SET verify_hash = $2, lookup_hash = $3 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, verifyHash, lookupHash)
	if err != nil {
		if pqErr, ok := pqError(err); ok && pqErr.Code == pqUniqueViolation {
			return fmt.Errorf("refresh token with lookup hash already exists: %w", ErrDuplicateToken)
		}
		return fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("refresh token with id %d not found: %w", id, ErrNotFound)
	}

	return nil
}

// Delete deletes a refresh token by ID
func (r *refreshTokenRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM refresh_tokens WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("refresh token with id %d not found: %w", id, ErrNotFound)
	}

	return nil
}

// RevokeAllForAccount marks every live record of the account revoked
func (r *refreshTokenRepository) RevokeAllForAccount(ctx context.Context, accountPublicID string) (int64, error) {
	query := `UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND NOT revoked`

	result, err := r.db.ExecContext(ctx, query, accountPublicID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// DeleteExpired removes expired and revoked records
func (r *refreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at <= $1 OR revoked`

	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}

	return result.RowsAffected()
}
