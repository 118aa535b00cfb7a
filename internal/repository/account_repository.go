package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/prperemyshlev/auth-session-service/internal/domain"
)

const accountColumns = `id, public_id, name, email, role, auth_providers, password_hash,
		email_verified, github_id, google_id, created_at, updated_at`

// externalIDColumns maps federated providers to their id column
var externalIDColumns = map[domain.Provider]string{
	domain.ProviderGitHub: "github_id",
	domain.ProviderGoogle: "google_id",
}

// accountRepository implements AccountRepository interface
type accountRepository struct {
	db DBTX
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db DBTX) AccountRepository {
	return &accountRepository{db: db}
}

// Insert creates a new account, filling in its generated fields
func (r *accountRepository) Insert(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO users (public_id, name, email, role, auth_providers, password_hash,
			email_verified, github_id, google_id)
		VALUES ($1, $2, $3, $4, $5::auth_provider[], $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	if account.PublicID == "" {
		account.PublicID = uuid.NewString()
	}
	if account.Role == "" {
		account.Role = domain.RoleUser
	}

	err := r.db.QueryRowContext(ctx, query,
		account.PublicID,
		account.Name,
		account.Email,
		string(account.Role),
		pq.Array(account.Providers.Strings()),
		account.PasswordHash,
		account.EmailVerified,
		account.GitHubID,
		account.GoogleID,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", mapWriteError(err))
	}

	return nil
}

// FindByEmail retrieves an account by email
func (r *accountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE email = $1`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account with email %s not found: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}

	return account, nil
}

// FindByPublicID retrieves an account by its public identifier
func (r *accountRepository) FindByPublicID(ctx context.Context, publicID string) (*domain.Account, error) {
	if _, err := uuid.Parse(publicID); err != nil {
		return nil, fmt.Errorf("account with public id %q not found: %w", publicID, ErrNotFound)
	}

	query := `SELECT ` + accountColumns + ` FROM users WHERE public_id = $1`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, publicID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account with public id %s not found: %w", publicID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account by public id: %w", err)
	}

	return account, nil
}

// FindByID retrieves an account by its internal key
func (r *accountRepository) FindByID(ctx context.Context, id int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE id = $1`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account with id %d not found: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account by id: %w", err)
	}

	return account, nil
}

// FindByProviderID retrieves the account a federated identity is linked to
func (r *accountRepository) FindByProviderID(ctx context.Context, provider domain.Provider, externalID string) (*domain.Account, error) {
	column, ok := externalIDColumns[provider]
	if !ok {
		return nil, fmt.Errorf("provider %q has no external id", provider)
	}

	query := `SELECT ` + accountColumns + ` FROM users WHERE ` + column + ` = $1`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account with %s %s not found: %w", column, externalID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account by %s: %w", column, err)
	}

	return account, nil
}

// UpdateCredential applies upd to the account in a single UPDATE, so the
// password hash and the provider set always change together
func (r *accountRepository) UpdateCredential(ctx context.Context, id int64, upd domain.CredentialUpdate) error {
	if upd.Empty() {
		return nil
	}

	query, args, err := buildCredentialUpdate(id, upd)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update account credential: %w", mapWriteError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("account with id %d not found: %w", id, ErrNotFound)
	}

	return nil
}

func buildCredentialUpdate(id int64, upd domain.CredentialUpdate) (string, []any, error) {
	args := []any{id}
	sets := []string{"updated_at = NOW()"}

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch {
	case upd.ClearPasswordHash:
		sets = append(sets, "password_hash = NULL")
	case upd.PasswordHash != nil:
		sets = append(sets, "password_hash = "+arg(*upd.PasswordHash))
	}

	switch {
	case upd.ClearEmailVerified:
		sets = append(sets, "email_verified = NULL")
	case upd.EmailVerified != nil:
		sets = append(sets, "email_verified = "+arg(*upd.EmailVerified))
	}

	if len(upd.ProvidersAdd) > 0 || len(upd.ProvidersRemove) > 0 {
		expr := "auth_providers"
		if len(upd.ProvidersAdd) > 0 {
			add := arg(pq.Array(domain.ProviderSet(upd.ProvidersAdd).Strings()))
			expr = fmt.Sprintf("ARRAY(SELECT DISTINCT p FROM unnest(array_cat(%s, %s::auth_provider[])) AS p)", expr, add)
		}
		if len(upd.ProvidersRemove) > 0 {
			remove := arg(pq.Array(domain.ProviderSet(upd.ProvidersRemove).Strings()))
			expr = fmt.Sprintf("ARRAY(SELECT p FROM unnest(%s) AS p WHERE NOT (p = ANY(%s::auth_provider[])))", expr, remove)
		}
		sets = append(sets, "auth_providers = "+expr)
	}

	if ext := upd.ProviderExternalID; ext != nil {
		column, ok := externalIDColumns[ext.Provider]
		if !ok {
			return "", nil, fmt.Errorf("provider %q has no external id", ext.Provider)
		}
		sets = append(sets, column+" = "+arg(ext.ID))
	}

	query := "UPDATE users SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	return query, args, nil
}

// Delete removes an account; its tokens go with it through ON DELETE CASCADE
func (r *accountRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM users WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("account with id %d not found: %w", id, ErrNotFound)
	}

	return nil
}

func scanAccount(row *sql.Row) (*domain.Account, error) {
	account := &domain.Account{}
	var (
		role          string
		providers     []string
		passwordHash  sql.NullString
		emailVerified sql.NullBool
		githubID      sql.NullString
		googleID      sql.NullString
	)

	err := row.Scan(
		&account.ID,
		&account.PublicID,
		&account.Name,
		&account.Email,
		&role,
		pq.Array(&providers),
		&passwordHash,
		&emailVerified,
		&githubID,
		&googleID,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.Role = domain.Role(role)
	for _, p := range providers {
		account.Providers = account.Providers.Add(domain.Provider(p))
	}
	if passwordHash.Valid {
		account.PasswordHash = &passwordHash.String
	}
	if emailVerified.Valid {
		account.EmailVerified = &emailVerified.Bool
	}
	if githubID.Valid {
		account.GitHubID = &githubID.String
	}
	if googleID.Valid {
		account.GoogleID = &googleID.String
	}

	return account, nil
}

// mapWriteError translates constraint violations into repository errors
func mapWriteError(err error) error {
	pqErr, ok := pqError(err)
	if !ok {
		return err
	}

	switch pqErr.Code {
	case pqUniqueViolation:
		switch pqErr.Constraint {
		case "users_github_id_key", "users_google_id_key":
			return ErrDuplicateProviderID
		case "refresh_tokens_lookup_hash_key", "email_verifications_token_hash_key", "password_resets_token_hash_key":
			return ErrDuplicateToken
		default:
			return ErrDuplicateEmail
		}
	case pqCheckViolation:
		return ErrCredentialInvariant
	}

	return err
}
