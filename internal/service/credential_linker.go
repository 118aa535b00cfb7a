package service

import (
	"context"
	"errors"
	"time"

	"github.com/prperemyshlev/auth-session-service/internal/domain"
	"github.com/prperemyshlev/auth-session-service/internal/repository"
	"github.com/prperemyshlev/auth-session-service/internal/tokens"
	"github.com/prperemyshlev/auth-session-service/internal/utils"
	"go.uber.org/zap"
)

// LinkerPolicy holds the credential hashing cost and verification lifetime
type LinkerPolicy struct {
	PasswordCost    int
	VerificationTTL time.Duration
}

// IssuedToken is a freshly issued single-use token. Value is the only
// plaintext copy; the store keeps its digest.
type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// ExternalProfile is a normalized identity provider profile
type ExternalProfile struct {
	ExternalID string
	Email      string
	Name       string
}

// CredentialLinker is the only writer of an account's password hash and
// provider set. Every mutation sets or clears the local provider together
// with the password hash in a single statement.
type CredentialLinker struct {
	store  repository.Store
	policy LinkerPolicy
	options
}

// NewCredentialLinker creates a new credential linker
func NewCredentialLinker(store repository.Store, policy LinkerPolicy, opts ...Option) *CredentialLinker {
	return &CredentialLinker{
		store:   store,
		policy:  policy,
		options: newOptions(opts),
	}
}

// CreateAccountWithLocalCredential creates an account whose only method is
// a password, together with its verification token. If delivering the token
// fails the caller must run CompensateSignup.
func (l *CredentialLinker) CreateAccountWithLocalCredential(ctx context.Context, email, name, password string) (*IssuedToken, *domain.Account, error) {
	hash, err := utils.HashPassword(password, l.policy.PasswordCost)
	if err != nil {
		return nil, nil, internalError("hash password", err)
	}

	unverified := false
	account := &domain.Account{
		Name:          name,
		Email:         email,
		Role:          domain.RoleUser,
		Providers:     domain.ProviderSet{domain.ProviderLocal},
		PasswordHash:  &hash,
		EmailVerified: &unverified,
	}

	var issued *IssuedToken
	err = l.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		if err := repos.Accounts.Insert(ctx, account); err != nil {
			return err
		}

		token, row, err := l.newOneTimeToken(account.ID, email, l.policy.VerificationTTL)
		if err != nil {
			return err
		}
		if err := repos.Verifications.Upsert(ctx, row); err != nil {
			return err
		}

		issued = token
		return nil
	})
	if errors.Is(err, repository.ErrDuplicateEmail) {
		return nil, nil, ErrAccountExists
	}
	if err != nil {
		l.logger.Error("Failed to create account", zap.Error(err))
		return nil, nil, internalError("create account", err)
	}

	l.logger.Info("Account created", zap.String("account", account.PublicID), zap.String("provider", string(domain.ProviderLocal)))
	return issued, account, nil
}

// AddLocalCredential links a password to an existing account and issues a
// verification token. If delivering the token fails the caller must run
// CompensateSignup.
func (l *CredentialLinker) AddLocalCredential(ctx context.Context, accountID int64, email, password string) (*IssuedToken, error) {
	hash, err := utils.HashPassword(password, l.policy.PasswordCost)
	if err != nil {
		return nil, internalError("hash password", err)
	}

	unverified := false

	var issued *IssuedToken
	err = l.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		err := repos.Accounts.UpdateCredential(ctx, accountID, domain.CredentialUpdate{
			PasswordHash:  &hash,
			EmailVerified: &unverified,
			ProvidersAdd:  []domain.Provider{domain.ProviderLocal},
		})
		if err != nil {
			return err
		}

		token, row, err := l.newOneTimeToken(accountID, email, l.policy.VerificationTTL)
		if err != nil {
			return err
		}
		if err := repos.Verifications.Upsert(ctx, row); err != nil {
			return err
		}

		issued = token
		return nil
	})
	if err != nil {
		l.logger.Error("Failed to add local credential", zap.Int64("account_id", accountID), zap.Error(err))
		return nil, internalError("add local credential", err)
	}

	return issued, nil
}

// RemoveLocalCredential restores the state before AddLocalCredential: no
// password, no verification flag, no local provider, no pending token
func (l *CredentialLinker) RemoveLocalCredential(ctx context.Context, accountID int64) error {
	err := l.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		err := repos.Accounts.UpdateCredential(ctx, accountID, domain.CredentialUpdate{
			ClearPasswordHash:  true,
			ClearEmailVerified: true,
			ProvidersRemove:    []domain.Provider{domain.ProviderLocal},
		})
		if err != nil {
			return err
		}
		return repos.Verifications.DeleteByAccount(ctx, accountID)
	})
	if err != nil {
		l.logger.Error("Failed to remove local credential", zap.Int64("account_id", accountID), zap.Error(err))
		return internalError("remove local credential", err)
	}
	return nil
}

// CompensateSignup undoes a sign-up whose verification email could not be
// delivered. An account created by the sign-up is deleted; a password added
// to an existing account is removed again.
func (l *CredentialLinker) CompensateSignup(ctx context.Context, account *domain.Account, addedToExisting bool) error {
	if addedToExisting {
		return l.RemoveLocalCredential(ctx, account.ID)
	}

	err := l.store.Repos().Accounts.Delete(ctx, account.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		l.logger.Error("Failed to delete account during compensation", zap.String("account", account.PublicID), zap.Error(err))
		return internalError("delete account", err)
	}

	l.logger.Info("Sign-up rolled back", zap.String("account", account.PublicID))
	return nil
}

// VerifyEmail consumes a verification token. The token row is locked so
// that of two concurrent attempts with one token exactly one succeeds.
func (l *CredentialLinker) VerifyEmail(ctx context.Context, plain string) error {
	if plain == "" {
		return ErrInvalidOrExpiredToken
	}

	var outcome error
	err := l.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		row, err := repos.Verifications.LockByHash(ctx, tokens.LookupHash(plain))
		if errors.Is(err, repository.ErrNotFound) {
			outcome = ErrInvalidOrExpiredToken
			return nil
		}
		if err != nil {
			return err
		}

		if !l.now().Before(row.ExpiresAt) {
			outcome = ErrInvalidOrExpiredToken
			return nil
		}

		verified := true
		if err := repos.Accounts.UpdateCredential(ctx, row.AccountID, domain.CredentialUpdate{EmailVerified: &verified}); err != nil {
			return err
		}
		return repos.Verifications.DeleteByAccount(ctx, row.AccountID)
	})
	if err != nil {
		l.logger.Error("Failed to verify email", zap.Error(err))
		return internalError("verify email", err)
	}

	return outcome
}

// ReissueVerification replaces the pending verification token of an
// unverified local account
func (l *CredentialLinker) ReissueVerification(ctx context.Context, email string) (*IssuedToken, *domain.Account, error) {
	repos := l.store.Repos()

	account, err := repos.Accounts.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, ErrNothingToVerify
	}
	if err != nil {
		return nil, nil, internalError("find account", err)
	}

	if !account.HasLocalCredential() || account.IsEmailVerified() {
		return nil, nil, ErrNothingToVerify
	}

	token, row, err := l.newOneTimeToken(account.ID, email, l.policy.VerificationTTL)
	if err != nil {
		return nil, nil, internalError("generate verification token", err)
	}
	if err := repos.Verifications.Upsert(ctx, row); err != nil {
		return nil, nil, internalError("store verification token", err)
	}

	return token, account, nil
}

// ResolveOAuthAccount maps a provider identity to an account, using the
// email address as the join key: an account already linked to the
// identity is returned as is, an account without the provider gets it
// linked, and an unknown email gets a new account with only this provider.
func (l *CredentialLinker) ResolveOAuthAccount(ctx context.Context, provider domain.Provider, profile ExternalProfile) (*domain.Account, error) {
	var resolved *domain.Account

	err := l.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		account, err := repos.Accounts.FindByEmail(ctx, profile.Email)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			account = &domain.Account{
				Name:      profile.Name,
				Email:     profile.Email,
				Role:      domain.RoleUser,
				Providers: domain.ProviderSet{provider},
			}
			externalID := profile.ExternalID
			switch provider {
			case domain.ProviderGitHub:
				account.GitHubID = &externalID
			case domain.ProviderGoogle:
				account.GoogleID = &externalID
			}
			if err := repos.Accounts.Insert(ctx, account); err != nil {
				return err
			}
			l.logger.Info("Account created", zap.String("account", account.PublicID), zap.String("provider", string(provider)))
			resolved = account
			return nil
		case err != nil:
			return err
		}

		linked := account.ExternalID(provider)
		if linked != nil && *linked != profile.ExternalID {
			return ErrProviderConflict
		}
		if account.Providers.Has(provider) && linked != nil {
			resolved = account
			return nil
		}

		err = repos.Accounts.UpdateCredential(ctx, account.ID, domain.CredentialUpdate{
			ProvidersAdd:       []domain.Provider{provider},
			ProviderExternalID: &domain.ExternalID{Provider: provider, ID: profile.ExternalID},
		})
		if err != nil {
			return err
		}

		resolved, err = repos.Accounts.FindByID(ctx, account.ID)
		if err != nil {
			return err
		}
		l.logger.Info("Provider linked", zap.String("account", account.PublicID), zap.String("provider", string(provider)))
		return nil
	})
	switch {
	case err == nil:
		return resolved, nil
	case errors.Is(err, ErrProviderConflict), errors.Is(err, repository.ErrDuplicateProviderID):
		return nil, ErrProviderConflict
	default:
		l.logger.Error("Failed to resolve oauth account", zap.String("provider", string(provider)), zap.Error(err))
		return nil, internalError("resolve oauth account", err)
	}
}

// SetPassword replaces the password hash of an account that already has
// the local provider, on repositories bound to the caller's transaction
func (l *CredentialLinker) SetPassword(ctx context.Context, repos *repository.Repositories, accountID int64, hash string) error {
	return repos.Accounts.UpdateCredential(ctx, accountID, domain.CredentialUpdate{PasswordHash: &hash})
}

// HashPassword hashes a password with the linker's work factor
func (l *CredentialLinker) HashPassword(password string) (string, error) {
	return utils.HashPassword(password, l.policy.PasswordCost)
}

// newOneTimeToken generates a token and the row that stores its digest
func (l *CredentialLinker) newOneTimeToken(accountID int64, email string, ttl time.Duration) (*IssuedToken, *domain.OneTimeToken, error) {
	return newOneTimeToken(accountID, email, ttl, l.now())
}

func newOneTimeToken(accountID int64, email string, ttl time.Duration, now time.Time) (*IssuedToken, *domain.OneTimeToken, error) {
	plain, err := tokens.NewOpaqueToken()
	if err != nil {
		return nil, nil, err
	}

	expiresAt := now.Add(ttl)
	return &IssuedToken{Value: plain, ExpiresAt: expiresAt}, &domain.OneTimeToken{
		AccountID: accountID,
		Email:     email,
		TokenHash: tokens.LookupHash(plain),
		ExpiresAt: expiresAt,
	}, nil
}
