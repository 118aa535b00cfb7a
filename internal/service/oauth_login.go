package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/prperemyshlev/auth-session-service/internal/domain"
	"github.com/prperemyshlev/auth-session-service/internal/oauth"
	"go.uber.org/zap"
)

// Messages carried in the oerror query parameter of failed sign-ins
const (
	OAuthErrorDenied          = "access_denied"
	OAuthErrorInvalidState    = "invalid_state"
	OAuthErrorProvider        = "provider_error"
	OAuthErrorAccountConflict = "account_conflict"
	OAuthErrorUnknownProvider = "unknown_provider"
	OAuthErrorServer          = "server_error"
)

// OAuthCallback is what the provider sent back to the callback endpoint
type OAuthCallback struct {
	Provider domain.Provider
	Code     string
	State    string
	// Error is the provider's error parameter, set when the user declined
	Error string
}

// OAuthLogin signs users in through an external identity provider
type OAuthLogin struct {
	exchange    *oauth.Exchange
	linker      *CredentialLinker
	sessions    *SessionManager
	frontendURL string
	options
}

// NewOAuthLogin creates the provider sign-in flow
func NewOAuthLogin(exchange *oauth.Exchange, linker *CredentialLinker, sessions *SessionManager, frontendURL string, opts ...Option) *OAuthLogin {
	return &OAuthLogin{
		exchange:    exchange,
		linker:      linker,
		sessions:    sessions,
		frontendURL: frontendURL,
		options:     newOptions(opts),
	}
}

// Begin returns the provider authorization URL
func (o *OAuthLogin) Begin(provider domain.Provider, intent oauth.Intent, slots oauth.FlowSlots) (string, error) {
	return o.exchange.Begin(provider, intent, slots)
}

// Complete finishes the flow. It returns a session and its redirect target
// on success; on failure the session is nil and the redirect points at the
// sign-in or sign-up page with the reason attached.
func (o *OAuthLogin) Complete(ctx context.Context, cb OAuthCallback, slots oauth.FlowSlots, device domain.DeviceMeta) (*Session, string) {
	if cb.Error != "" {
		slots.Take(oauth.StateSlot)
		slots.Take(oauth.VerifierSlot)
		return nil, o.fail(ctx, cb.Provider, oauth.IntentFromState(cb.State), OAuthErrorDenied, nil)
	}

	profile, intent, err := o.exchange.Complete(ctx, cb.Provider, cb.Code, cb.State, slots)
	switch {
	case errors.Is(err, oauth.ErrUnknownProvider):
		return nil, o.fail(ctx, cb.Provider, intent, OAuthErrorUnknownProvider, err)
	case errors.Is(err, oauth.ErrStateMismatch), errors.Is(err, oauth.ErrFlowNotStarted):
		return nil, o.fail(ctx, cb.Provider, intent, OAuthErrorInvalidState, err)
	case err != nil:
		return nil, o.fail(ctx, cb.Provider, intent, OAuthErrorProvider, err)
	}

	account, err := o.linker.ResolveOAuthAccount(ctx, cb.Provider, ExternalProfile{
		ExternalID: profile.ExternalID,
		Email:      profile.Email,
		Name:       profile.Name,
	})
	switch {
	case errors.Is(err, ErrProviderConflict):
		return nil, o.fail(ctx, cb.Provider, intent, OAuthErrorAccountConflict, err)
	case err != nil:
		return nil, o.fail(ctx, cb.Provider, intent, OAuthErrorServer, err)
	}

	if device.Name == "" {
		device.Name = fmt.Sprintf("%s sign-in", cb.Provider)
	}

	// a failure here keeps the link; a retry resolves to it by provider id
	session, err := o.sessions.CreateSession(ctx, SessionSubject{PublicID: account.PublicID, Role: account.Role}, device, "")
	if err != nil {
		return nil, o.fail(ctx, cb.Provider, intent, OAuthErrorServer, err)
	}

	o.metrics.OAuthCallback(ctx, string(cb.Provider), "success")
	return session, session.RedirectTo
}

func (o *OAuthLogin) fail(ctx context.Context, provider domain.Provider, intent oauth.Intent, reason string, err error) string {
	o.metrics.OAuthCallback(ctx, string(provider), reason)
	o.logger.Warn("OAuth sign-in failed",
		zap.String("provider", string(provider)),
		zap.String("reason", reason),
		zap.Error(err),
	)
	return o.ErrorRedirect(intent, reason)
}

// ErrorRedirect builds the frontend URL a failed sign-in lands on
func (o *OAuthLogin) ErrorRedirect(intent oauth.Intent, reason string) string {
	return fmt.Sprintf("%s/%s?oerror=%s", o.frontendURL, intent, url.QueryEscape(reason))
}
