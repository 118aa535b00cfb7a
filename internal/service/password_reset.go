package service

import (
	"context"
	"errors"
	"time"

	"github.com/prperemyshlev/auth-session-service/internal/notify"
	"github.com/prperemyshlev/auth-session-service/internal/repository"
	"github.com/prperemyshlev/auth-session-service/internal/tokens"
	"github.com/prperemyshlev/auth-session-service/internal/utils"
	"go.uber.org/zap"
)

// passwordResetService implements PasswordResetService interface
type passwordResetService struct {
	store    repository.Store
	linker   *CredentialLinker
	sessions *SessionManager
	notifier notify.Notifier
	links    notify.Links
	throttle NotificationLimiter
	ttl      time.Duration
	options
}

// NewPasswordResetService creates a new password reset service
func NewPasswordResetService(
	store repository.Store,
	linker *CredentialLinker,
	sessions *SessionManager,
	notifier notify.Notifier,
	links notify.Links,
	throttle NotificationLimiter,
	ttl time.Duration,
	opts ...Option,
) PasswordResetService {
	return &passwordResetService{
		store:    store,
		linker:   linker,
		sessions: sessions,
		notifier: notifier,
		links:    links,
		throttle: throttle,
		ttl:      ttl,
		options:  newOptions(opts),
	}
}

// RequestReset emails a reset link to a local account. The caller sees the
// same result whether or not the address belongs to an account.
func (s *passwordResetService) RequestReset(ctx context.Context, email string) error {
	email = utils.SanitizeEmail(email)
	if !utils.ValidateEmail(email) {
		return &ValidationError{Fields: map[string]string{"email": "Invalid email address"}}
	}

	if s.throttle != nil {
		ok, err := s.throttle.Allow(ctx, PurposePasswordReset, email)
		if err != nil {
			s.logger.Warn("Notification throttle unavailable", zap.Error(err))
		} else if !ok {
			return nil
		}
	}

	repos := s.store.Repos()

	account, err := repos.Accounts.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error("Failed to get account for reset", zap.Error(err))
		}
		return nil
	}
	if !account.HasLocalCredential() {
		return nil
	}

	token, row, err := newOneTimeToken(account.ID, email, s.ttl, s.now())
	if err != nil {
		s.logger.Error("Failed to generate reset token", zap.Error(err))
		return nil
	}
	if err := repos.PasswordResets.Upsert(ctx, row); err != nil {
		s.logger.Error("Failed to store reset token", zap.String("account", account.PublicID), zap.Error(err))
		return nil
	}

	if err := s.notifier.SendPasswordReset(ctx, email, account.Name, s.links.PasswordReset(token.Value)); err != nil {
		s.logger.Warn("Password reset email failed", zap.String("account", account.PublicID), zap.Error(err))
		if derr := repos.PasswordResets.DeleteByAccount(ctx, account.ID); derr != nil {
			s.logger.Error("Failed to discard undelivered reset token", zap.Error(derr))
		}
	}

	return nil
}

// ConfirmReset sets a new password from a reset token. Consuming the token,
// changing the password and revoking every session happen in one
// transaction holding the token row lock.
func (s *passwordResetService) ConfirmReset(ctx context.Context, plain, password, confirm string) error {
	if err := validationError(utils.ValidateNewPassword(password, confirm)); err != nil {
		return err
	}
	if plain == "" {
		return ErrInvalidOrExpiredToken
	}

	hash, err := s.linker.HashPassword(password)
	if err != nil {
		return internalError("hash password", err)
	}

	var outcome error
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		row, err := repos.PasswordResets.LockByHash(ctx, tokens.LookupHash(plain))
		if errors.Is(err, repository.ErrNotFound) {
			outcome = ErrInvalidOrExpiredToken
			return nil
		}
		if err != nil {
			return err
		}

		if !s.now().Before(row.ExpiresAt) {
			outcome = ErrInvalidOrExpiredToken
			return nil
		}

		account, err := repos.Accounts.FindByID(ctx, row.AccountID)
		if err != nil {
			return err
		}

		if err := s.linker.SetPassword(ctx, repos, account.ID, hash); err != nil {
			return err
		}
		if err := repos.PasswordResets.DeleteByAccount(ctx, account.ID); err != nil {
			return err
		}
		_, err = s.sessions.RevokeAllWithin(ctx, repos, account.PublicID)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to reset password", zap.Error(err))
		return internalError("reset password", err)
	}

	return outcome
}
