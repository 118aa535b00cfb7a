package service

import (
	"context"
	"errors"
	"time"

	"github.com/prperemyshlev/auth-session-service/internal/domain"
	"github.com/prperemyshlev/auth-session-service/internal/repository"
	"github.com/prperemyshlev/auth-session-service/internal/tokens"
	"go.uber.org/zap"
)

// SessionPolicy holds the lifetimes of a session
type SessionPolicy struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// RotationThreshold is the record age past which a refresh also
	// replaces the refresh token value
	RotationThreshold time.Duration
	// DefaultRedirect is returned when the caller names no redirect target
	DefaultRedirect string
}

// SessionSubject identifies whom a session is issued to
type SessionSubject struct {
	PublicID string
	Role     domain.Role
}

// Session is a freshly started session. RefreshToken is the only copy of
// the plaintext value; it is never retrievable again.
type Session struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	RedirectTo       string
}

// RefreshResult is the outcome of a successful refresh. RefreshToken is
// empty unless Rotated.
type RefreshResult struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Rotated          bool
}

// SessionState is the result of ValidateSession. Refreshed is set when the
// access token had to be re-minted from the refresh token.
type SessionState struct {
	Identity  tokens.Identity
	Refreshed *RefreshResult
}

// SessionManager issues, verifies, rotates and revokes sessions. It is the
// only writer of refresh token records.
type SessionManager struct {
	store  repository.Store
	codec  *tokens.Codec
	policy SessionPolicy
	options
}

// NewSessionManager creates a new session manager
func NewSessionManager(store repository.Store, codec *tokens.Codec, policy SessionPolicy, opts ...Option) *SessionManager {
	return &SessionManager{
		store:   store,
		codec:   codec,
		policy:  policy,
		options: newOptions(opts),
	}
}

// Policy returns the lifetimes the manager was configured with
func (m *SessionManager) Policy() SessionPolicy {
	return m.policy
}

// CreateSession mints an access token and persists a new refresh token record
func (m *SessionManager) CreateSession(ctx context.Context, subject SessionSubject, device domain.DeviceMeta, redirectTo string) (*Session, error) {
	accessToken, accessExpiresAt, err := m.codec.SignAccessToken(subject.PublicID, subject.Role, m.policy.AccessTTL)
	if err != nil {
		return nil, internalError("sign access token", err)
	}

	plain, verifyHash, lookupHash, err := m.newRefreshMaterial()
	if err != nil {
		return nil, internalError("generate refresh token", err)
	}

	now := m.now()
	record := &domain.RefreshToken{
		AccountPublicID: subject.PublicID,
		VerifyHash:      verifyHash,
		LookupHash:      lookupHash,
		DeviceName:      deviceName(device.Name),
		UserAgent:       optional(device.UserAgent),
		IPAddress:       optional(device.IPAddress),
		CreatedAt:       now,
		ExpiresAt:       now.Add(m.policy.RefreshTTL),
	}

	if err := m.store.Repos().RefreshTokens.Insert(ctx, record); err != nil {
		m.logger.Error("Failed to persist refresh token",
			zap.String("account", subject.PublicID),
			zap.Error(err),
		)
		return nil, internalError("insert refresh token", err)
	}

	if redirectTo == "" {
		redirectTo = m.policy.DefaultRedirect
	}

	m.metrics.SessionCreated(ctx)
	m.logger.Info("Session created",
		zap.String("account", subject.PublicID),
		zap.String("device", *record.DeviceName),
	)

	return &Session{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     plain,
		RefreshExpiresAt: record.ExpiresAt,
		RedirectTo:       redirectTo,
	}, nil
}

// VerifyAccessToken checks an access token without touching the store
func (m *SessionManager) VerifyAccessToken(token string) tokens.Verification {
	return m.codec.VerifyAccessToken(token)
}

// Refresh mints a new access token from a refresh token. Every refresh
// failure collapses to ErrSignedOut. The record is locked for the whole
// check-then-rotate sequence.
func (m *SessionManager) Refresh(ctx context.Context, plain string) (*RefreshResult, error) {
	if plain == "" {
		m.metrics.SignedOut(ctx, "missing")
		return nil, ErrSignedOut
	}

	lookupHash := tokens.LookupHash(plain)

	var (
		result *RefreshResult
		reason string
	)

	err := m.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		record, err := repos.RefreshTokens.LockByLookupHash(ctx, lookupHash)
		if errors.Is(err, repository.ErrNotFound) {
			reason = "not_found"
			return nil
		}
		if err != nil {
			return err
		}

		if !tokens.CompareStorageHash(record.VerifyHash, plain) {
			reason = "mismatch"
			return nil
		}

		now := m.now()
		if record.Revoked || now.After(record.ExpiresAt) {
			reason = "expired"
			if record.Revoked {
				reason = "revoked"
			}
			return repos.RefreshTokens.Delete(ctx, record.ID)
		}

		account, err := repos.Accounts.FindByPublicID(ctx, record.AccountPublicID)
		if errors.Is(err, repository.ErrNotFound) {
			reason = "account_missing"
			return repos.RefreshTokens.Delete(ctx, record.ID)
		}
		if err != nil {
			return err
		}

		accessToken, accessExpiresAt, err := m.codec.SignAccessToken(account.PublicID, account.Role, m.policy.AccessTTL)
		if err != nil {
			return err
		}

		res := &RefreshResult{
			AccessToken:      accessToken,
			AccessExpiresAt:  accessExpiresAt,
			RefreshExpiresAt: record.ExpiresAt,
		}

		if now.Sub(record.CreatedAt) > m.policy.RotationThreshold {
			next, verifyHash, nextLookup, err := m.newRefreshMaterial()
			if err != nil {
				return err
			}
			if err := repos.RefreshTokens.UpdateHashes(ctx, record.ID, verifyHash, nextLookup); err != nil {
				return err
			}
			res.RefreshToken = next
			res.Rotated = true
		}

		result = res
		return nil
	})
	if err != nil {
		m.logger.Error("Failed to refresh session", zap.Error(err))
		return nil, internalError("refresh session", err)
	}

	if result == nil {
		m.metrics.SignedOut(ctx, reason)
		m.logger.Debug("Refresh rejected", zap.String("reason", reason))
		return nil, ErrSignedOut
	}

	m.metrics.SessionRefreshed(ctx, result.Rotated)
	return result, nil
}

// Destroy deletes the session a refresh token belongs to. It reports
// whether a live session was destroyed; unknown, mismatched and already
// destroyed tokens report false without error.
func (m *SessionManager) Destroy(ctx context.Context, plain string) (bool, error) {
	if plain == "" {
		return false, nil
	}

	repos := m.store.Repos()

	record, err := repos.RefreshTokens.FindByLookupHash(ctx, tokens.LookupHash(plain))
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		m.logger.Error("Failed to look up refresh token", zap.Error(err))
		return false, internalError("find refresh token", err)
	}

	if !tokens.CompareStorageHash(record.VerifyHash, plain) {
		return false, nil
	}

	err = repos.RefreshTokens.Delete(ctx, record.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		m.logger.Error("Failed to delete refresh token", zap.Error(err))
		return false, internalError("delete refresh token", err)
	}

	live := !record.Revoked && !m.now().After(record.ExpiresAt)
	if live {
		m.logger.Info("Session destroyed", zap.String("account", record.AccountPublicID))
	}
	return live, nil
}

// RevokeAll marks every refresh token of the account revoked
func (m *SessionManager) RevokeAll(ctx context.Context, publicID string) (int64, error) {
	n, err := m.RevokeAllWithin(ctx, m.store.Repos(), publicID)
	if err != nil {
		return 0, internalError("revoke sessions", err)
	}
	return n, nil
}

// RevokeAllWithin is RevokeAll on repositories bound to the caller's
// transaction. Store errors are returned unwrapped so the caller can roll back.
func (m *SessionManager) RevokeAllWithin(ctx context.Context, repos *repository.Repositories, publicID string) (int64, error) {
	n, err := repos.RefreshTokens.RevokeAllForAccount(ctx, publicID)
	if err != nil {
		return 0, err
	}

	m.logger.Info("Sessions revoked", zap.String("account", publicID), zap.Int64("count", n))
	return n, nil
}

// ValidateSession accepts a valid access token and otherwise falls back to
// the refresh token
func (m *SessionManager) ValidateSession(ctx context.Context, accessToken, refreshToken string) (*SessionState, error) {
	if accessToken != "" {
		if v := m.codec.VerifyAccessToken(accessToken); v.Status == tokens.StatusValid {
			return &SessionState{Identity: v.Identity}, nil
		}
	}

	refreshed, err := m.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	v := m.codec.VerifyAccessToken(refreshed.AccessToken)
	if v.Status != tokens.StatusValid {
		return nil, internalError("verify minted token", errors.New(v.Status.String()))
	}

	return &SessionState{Identity: v.Identity, Refreshed: refreshed}, nil
}

// PurgeExpired deletes expired and revoked records. Expiry is enforced at
// refresh time regardless; this only reclaims storage.
func (m *SessionManager) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := m.store.Repos().RefreshTokens.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, internalError("purge refresh tokens", err)
	}
	return n, nil
}

func (m *SessionManager) newRefreshMaterial() (plain, verifyHash, lookupHash string, err error) {
	plain, err = tokens.NewOpaqueToken()
	if err != nil {
		return "", "", "", err
	}
	verifyHash, err = m.codec.HashForStorage(plain)
	if err != nil {
		return "", "", "", err
	}
	return plain, verifyHash, tokens.LookupHash(plain), nil
}

func deviceName(name string) *string {
	if name == "" {
		name = domain.DefaultDeviceName
	}
	return &name
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
