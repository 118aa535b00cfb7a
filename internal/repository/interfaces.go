package repository

import (
	"context"
	"time"

	"github.com/prperemyshlev/auth-session-service/internal/domain"
)

// AccountRepository reads and writes account rows
type AccountRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByPublicID(ctx context.Context, publicID string) (*domain.Account, error)
	FindByID(ctx context.Context, id int64) (*domain.Account, error)
	FindByProviderID(ctx context.Context, provider domain.Provider, externalID string) (*domain.Account, error)
	Insert(ctx context.Context, account *domain.Account) error
	// UpdateCredential applies the whole update in one statement
	UpdateCredential(ctx context.Context, id int64, upd domain.CredentialUpdate) error
	Delete(ctx context.Context, id int64) error
}

// OneTimeTokenRepository stores single-use tokens, one live row per account
type OneTimeTokenRepository interface {
	// Upsert replaces any existing row for the account
	Upsert(ctx context.Context, token *domain.OneTimeToken) error
	// LockByHash selects the row and holds a row lock until the surrounding
	// transaction ends, so concurrent consumers of one token serialize
	LockByHash(ctx context.Context, tokenHash string) (*domain.OneTimeToken, error)
	DeleteByAccount(ctx context.Context, accountID int64) error
}

// RefreshTokenRepository stores refresh token records
type RefreshTokenRepository interface {
	Insert(ctx context.Context, token *domain.RefreshToken) error
	FindByLookupHash(ctx context.Context, lookupHash string) (*domain.RefreshToken, error)
	// LockByLookupHash is FindByLookupHash holding a row lock until the
	// surrounding transaction ends
	LockByLookupHash(ctx context.Context, lookupHash string) (*domain.RefreshToken, error)
	UpdateHashes(ctx context.Context, id int64, verifyHash, lookupHash string) error
	Delete(ctx context.Context, id int64) error
	RevokeAllForAccount(ctx context.Context, accountPublicID string) (int64, error)
	// DeleteExpired removes records past their expiry or revoked
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Store is the credential store the session and credential services depend on
type Store interface {
	// Repos returns repositories running each statement on its own
	Repos() *Repositories
	// WithinTx runs fn with repositories bound to one transaction
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) error
}
