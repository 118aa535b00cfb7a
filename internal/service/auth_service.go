package service

import (
	"context"
	"errors"

	"github.com/prperemyshlev/auth-session-service/internal/domain"
	"github.com/prperemyshlev/auth-session-service/internal/notify"
	"github.com/prperemyshlev/auth-session-service/internal/repository"
	"github.com/prperemyshlev/auth-session-service/internal/utils"
	"go.uber.org/zap"
)

// SignUpInput is the local sign-up form
type SignUpInput struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

// SignUpOutcome tells a brand new account from a password added to an
// account that so far only signed in through a provider
type SignUpOutcome int

const (
	SignUpCreated SignUpOutcome = iota
	SignUpLinked
)

// authService implements AuthService interface
type authService struct {
	store    repository.Store
	linker   *CredentialLinker
	sessions *SessionManager
	notifier notify.Notifier
	links    notify.Links
	throttle NotificationLimiter
	options
}

// NewAuthService creates a new auth service
func NewAuthService(
	store repository.Store,
	linker *CredentialLinker,
	sessions *SessionManager,
	notifier notify.Notifier,
	links notify.Links,
	throttle NotificationLimiter,
	opts ...Option,
) AuthService {
	return &authService{
		store:    store,
		linker:   linker,
		sessions: sessions,
		notifier: notifier,
		links:    links,
		throttle: throttle,
		options:  newOptions(opts),
	}
}

// SignUp registers a local credential. A verification email is sent; when
// it cannot be delivered the sign-up is rolled back.
func (s *authService) SignUp(ctx context.Context, in SignUpInput) (SignUpOutcome, error) {
	email := utils.SanitizeEmail(in.Email)
	if err := validationError(utils.ValidateSignUp(in.Name, email, in.Password, in.ConfirmPassword)); err != nil {
		return 0, err
	}

	existing, err := s.store.Repos().Accounts.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Error("Failed to check account existence", zap.Error(err))
		return 0, internalError("find account", err)
	}

	var (
		token   *IssuedToken
		account *domain.Account
		outcome SignUpOutcome
	)

	switch {
	case existing != nil && existing.Providers.Has(domain.ProviderLocal):
		if existing.IsEmailVerified() {
			return 0, ErrAccountExists
		}
		return 0, ErrVerificationPending
	case existing != nil:
		token, err = s.linker.AddLocalCredential(ctx, existing.ID, email, in.Password)
		if err != nil {
			return 0, err
		}
		account, outcome = existing, SignUpLinked
	default:
		token, account, err = s.linker.CreateAccountWithLocalCredential(ctx, email, in.Name, in.Password)
		if err != nil {
			return 0, err
		}
		outcome = SignUpCreated
	}

	if err := s.notifier.SendVerification(ctx, email, account.Name, s.links.Verification(token.Value)); err != nil {
		s.logger.Warn("Verification email failed, rolling back sign-up",
			zap.String("account", account.PublicID),
			zap.Error(err),
		)
		if cerr := s.linker.CompensateSignup(ctx, account, outcome == SignUpLinked); cerr != nil {
			s.logger.Error("Sign-up compensation failed", zap.String("account", account.PublicID), zap.Error(cerr))
		}
		return 0, ErrNotificationFailed
	}

	return outcome, nil
}

// SignIn authenticates a local credential and starts a session. Unknown
// email, missing password and wrong password are indistinguishable.
func (s *authService) SignIn(ctx context.Context, email, password string, device domain.DeviceMeta) (*Session, error) {
	account, err := s.store.Repos().Accounts.FindByEmail(ctx, utils.SanitizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		s.metrics.SignInFailed(ctx, "unknown_email")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		s.logger.Error("Failed to get account", zap.Error(err))
		return nil, internalError("find account", err)
	}

	if !account.HasLocalCredential() {
		s.metrics.SignInFailed(ctx, "no_local_credential")
		return nil, ErrInvalidCredentials
	}

	if !utils.CheckPasswordHash(password, account.PasswordHash) {
		s.metrics.SignInFailed(ctx, "wrong_password")
		return nil, ErrInvalidCredentials
	}

	if !account.IsEmailVerified() {
		s.metrics.SignInFailed(ctx, "unverified")
		return nil, ErrEmailNotVerified
	}

	return s.sessions.CreateSession(ctx, SessionSubject{PublicID: account.PublicID, Role: account.Role}, device, "")
}

// ResendVerification issues a new verification token for an unverified
// local account. Repeated requests within the throttle cooldown are
// accepted without sending anything.
func (s *authService) ResendVerification(ctx context.Context, email string) error {
	email = utils.SanitizeEmail(email)
	if !utils.ValidateEmail(email) {
		return &ValidationError{Fields: map[string]string{"email": "Invalid email address"}}
	}

	if !s.allowNotification(ctx, PurposeVerification, email) {
		return nil
	}

	token, account, err := s.linker.ReissueVerification(ctx, email)
	if err != nil {
		return err
	}

	if err := s.notifier.SendVerification(ctx, email, account.Name, s.links.Verification(token.Value)); err != nil {
		s.logger.Warn("Verification email failed", zap.String("account", account.PublicID), zap.Error(err))
		return ErrNotificationFailed
	}
	return nil
}

// VerifyEmail consumes a verification token
func (s *authService) VerifyEmail(ctx context.Context, token string) error {
	return s.linker.VerifyEmail(ctx, token)
}

// ChangePassword replaces the password of a signed-in account and revokes
// every session of the account in the same transaction
func (s *authService) ChangePassword(ctx context.Context, publicID, current, next, confirm string) error {
	if err := validationError(utils.ValidateNewPassword(next, confirm)); err != nil {
		return err
	}

	account, err := s.store.Repos().Accounts.FindByPublicID(ctx, publicID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrAccountNotFound
	}
	if err != nil {
		return internalError("find account", err)
	}

	if !account.HasLocalCredential() || !utils.CheckPasswordHash(current, account.PasswordHash) {
		return ErrInvalidCredentials
	}

	hash, err := s.linker.HashPassword(next)
	if err != nil {
		return internalError("hash password", err)
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		if err := s.linker.SetPassword(ctx, repos, account.ID, hash); err != nil {
			return err
		}
		_, err := s.sessions.RevokeAllWithin(ctx, repos, account.PublicID)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to change password", zap.String("account", publicID), zap.Error(err))
		return internalError("change password", err)
	}

	s.logger.Info("Password changed", zap.String("account", publicID))
	return nil
}

// GetAccount returns the account behind an access token
func (s *authService) GetAccount(ctx context.Context, publicID string) (*domain.Account, error) {
	account, err := s.store.Repos().Accounts.FindByPublicID(ctx, publicID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, internalError("find account", err)
	}
	return account, nil
}

func (s *authService) allowNotification(ctx context.Context, purpose, email string) bool {
	if s.throttle == nil {
		return true
	}
	ok, err := s.throttle.Allow(ctx, purpose, email)
	if err != nil {
		s.logger.Warn("Notification throttle unavailable", zap.Error(err))
		return true
	}
	return ok
}
