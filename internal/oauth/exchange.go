package oauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prperemyshlev/auth-session-service/internal/domain"
	"golang.org/x/oauth2"
)

var (
	ErrUnknownProvider = errors.New("unknown oauth provider")
	ErrStateMismatch   = errors.New("oauth state mismatch")
	ErrFlowNotStarted  = errors.New("oauth flow not started")
	ErrProviderFailed  = errors.New("oauth provider request failed")
)

// Slot names under which a flow keeps its per-browser secrets
const (
	StateSlot    = "oauth_state"
	VerifierSlot = "oauth_verifier"
)

// FlowSlots is short-lived per-browser storage for the state and PKCE
// verifier between the authorization redirect and the callback.
type FlowSlots interface {
	Put(name, value string)
	// Take returns the stored value and clears the slot
	Take(name string) (string, bool)
}

// Exchange runs the authorization code flow with PKCE against the
// configured providers
type Exchange struct {
	providers  map[domain.Provider]Provider
	timeout    time.Duration
	httpClient *http.Client
}

// NewExchange creates an Exchange. A zero timeout leaves provider calls
// bounded only by the caller's context.
func NewExchange(timeout time.Duration, providers ...Provider) *Exchange {
	e := &Exchange{
		providers: make(map[domain.Provider]Provider, len(providers)),
		timeout:   timeout,
	}
	for _, p := range providers {
		e.providers[p.Name()] = p
	}
	return e
}

// WithHTTPClient sets the client used for token and profile requests
func (e *Exchange) WithHTTPClient(client *http.Client) *Exchange {
	e.httpClient = client
	return e
}

// Provider returns the named provider if it is configured
func (e *Exchange) Provider(name domain.Provider) (Provider, bool) {
	p, ok := e.providers[name]
	return p, ok
}

// Providers lists the configured provider names
func (e *Exchange) Providers() []domain.Provider {
	names := make([]domain.Provider, 0, len(e.providers))
	for name := range e.providers {
		names = append(names, name)
	}
	return names
}

// Begin stores a fresh state and verifier in slots and returns the
// provider authorization URL
func (e *Exchange) Begin(name domain.Provider, intent Intent, slots FlowSlots) (string, error) {
	provider, ok := e.providers[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}

	state, err := newState(intent)
	if err != nil {
		return "", err
	}
	verifier := oauth2.GenerateVerifier()

	slots.Put(StateSlot, state)
	slots.Put(VerifierSlot, verifier)

	return provider.Config().AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("prompt", "consent"),
	), nil
}

// Complete validates the callback against slots, exchanges the code and
// fetches the user profile. Slots are cleared whatever the outcome. The
// intent read from the returned state is reported even on failure.
func (e *Exchange) Complete(ctx context.Context, name domain.Provider, code, state string, slots FlowSlots) (*Profile, Intent, error) {
	storedState, hasState := slots.Take(StateSlot)
	verifier, hasVerifier := slots.Take(VerifierSlot)
	intent := IntentFromState(state)

	profile, err := e.complete(ctx, name, code, state, storedState, verifier, hasState && hasVerifier)
	return profile, intent, err
}

func (e *Exchange) complete(ctx context.Context, name domain.Provider, code, state, storedState, verifier string, started bool) (*Profile, error) {
	provider, ok := e.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}

	if !started {
		return nil, ErrFlowNotStarted
	}
	if state == "" || subtle.ConstantTimeCompare([]byte(storedState), []byte(state)) != 1 {
		return nil, ErrStateMismatch
	}
	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", ErrProviderFailed)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	if e.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	}

	cfg := provider.Config()
	token, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange: %v", ErrProviderFailed, err)
	}

	profile, err := provider.FetchProfile(ctx, cfg.Client(ctx, token))
	if err != nil {
		return nil, fmt.Errorf("%w: profile: %v", ErrProviderFailed, err)
	}

	profile.Email = strings.ToLower(strings.TrimSpace(profile.Email))
	if profile.Email == "" {
		return nil, fmt.Errorf("%w: %s account has no verified email", ErrProviderFailed, name)
	}

	return profile, nil
}
