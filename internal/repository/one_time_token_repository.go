package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prperemyshlev/auth-session-service/internal/domain"
)

// oneTimeTokenRepository implements OneTimeTokenRepository over a table
// keyed by user_id: email_verifications or password_resets
type oneTimeTokenRepository struct {
	db    DBTX
	table string
}

// NewOneTimeTokenRepository creates a repository over the given token table
func NewOneTimeTokenRepository(db DBTX, table string) OneTimeTokenRepository {
	return &oneTimeTokenRepository{db: db, table: table}
}

// Upsert stores the token, superseding any earlier token of the account
func (r *oneTimeTokenRepository) Upsert(ctx context.Context, token *domain.OneTimeToken) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, email, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET email = EXCLUDED.email, token_hash = EXCLUDED.token_hash, expires_at = EXCLUDED.expires_at
	`, r.table)

	_, err := r.db.ExecContext(ctx, query,
		token.AccountID,
		token.Email,
		token.TokenHash,
		token.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert %s token: %w", r.table, mapWriteError(err))
	}

	return nil
}

// LockByHash selects the token row FOR UPDATE
func (r *oneTimeTokenRepository) LockByHash(ctx context.Context, tokenHash string) (*domain.OneTimeToken, error) {
	query := fmt.Sprintf(`
		SELECT user_id, email, token_hash, expires_at
		FROM %s
		WHERE token_hash = $1
		FOR UPDATE
	`, r.table)

	token := &domain.OneTimeToken{}
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.AccountID,
		&token.Email,
		&token.TokenHash,
		&token.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s token not found: %w", r.table, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock %s token: %w", r.table, err)
	}

	return token, nil
}

// DeleteByAccount removes the account's token, if any
func (r *oneTimeTokenRepository) DeleteByAccount(ctx context.Context, accountID int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1`, r.table)

	if _, err := r.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("failed to delete %s token: %w", r.table, err)
	}

	return nil
}
