package repository

import (
	"context"
	"database/sql"

	"github.com/prperemyshlev/auth-session-service/pkg/database"
)

const (
	verificationsTable  = "email_verifications"
	passwordResetsTable = "password_resets"
)

// Repositories holds all repository interfaces
type Repositories struct {
	Accounts       AccountRepository
	Verifications  OneTimeTokenRepository
	PasswordResets OneTimeTokenRepository
	RefreshTokens  RefreshTokenRepository
}

// NewRepositories creates all repositories on top of db, which may be a
// connection pool or a transaction
func NewRepositories(db DBTX) *Repositories {
	return &Repositories{
		Accounts:       NewAccountRepository(db),
		Verifications:  NewOneTimeTokenRepository(db, verificationsTable),
		PasswordResets: NewOneTimeTokenRepository(db, passwordResetsTable),
		RefreshTokens:  NewRefreshTokenRepository(db),
	}
}

type postgresStore struct {
	db    *sql.DB
	repos *Repositories
}

// NewStore creates the PostgreSQL backed Store
func NewStore(pg *database.Postgres) Store {
	return &postgresStore{
		db:    pg.DB,
		repos: NewRepositories(pg.DB),
	}
}

func (s *postgresStore) Repos() *Repositories {
	return s.repos
}

func (s *postgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) error {
	return WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		return fn(ctx, NewRepositories(tx))
	})
}
