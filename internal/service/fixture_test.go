package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/prperemyshlev/auth-session-service/internal/domain"
	"github.com/prperemyshlev/auth-session-service/internal/notify"
	"github.com/prperemyshlev/auth-session-service/internal/repository/memstore"
	"github.com/prperemyshlev/auth-session-service/internal/tokens"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword    = "correct-horse-battery"
	defaultRedirect = "http://frontend.test/dashboard"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
	})
	return testKey
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type sentMessage struct {
	To   string
	Name string
	Link string
}

// Token returns the token query parameter of the link
func (m sentMessage) Token() string {
	u, err := url.Parse(m.Link)
	if err != nil {
		return ""
	}
	return u.Query().Get("token")
}

type recordingNotifier struct {
	mu            sync.Mutex
	fail          bool
	verifications []sentMessage
	resets        []sentMessage
}

func (n *recordingNotifier) SendVerification(_ context.Context, to, name, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("smtp unavailable")
	}
	n.verifications = append(n.verifications, sentMessage{To: to, Name: name, Link: link})
	return nil
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, to, name, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("smtp unavailable")
	}
	n.resets = append(n.resets, sentMessage{To: to, Name: name, Link: link})
	return nil
}

func (n *recordingNotifier) lastVerification(t *testing.T) sentMessage {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.verifications, "no verification sent")
	return n.verifications[len(n.verifications)-1]
}

func (n *recordingNotifier) lastReset(t *testing.T) sentMessage {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.resets, "no reset sent")
	return n.resets[len(n.resets)-1]
}

type fixture struct {
	store    *memstore.Store
	clock    *fakeClock
	codec    *tokens.Codec
	notifier *recordingNotifier
	sessions *SessionManager
	linker   *CredentialLinker
	auth     AuthService
	resets   PasswordResetService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := newFakeClock()
	codec, err := tokens.NewCodec(signingKey(t),
		tokens.WithClock(clock.Now),
		tokens.WithStorageCost(bcrypt.MinCost),
	)
	require.NoError(t, err)

	store := memstore.New()
	notifier := &recordingNotifier{}
	links := notify.Links{BaseURL: "http://auth.test", FrontendURL: "http://frontend.test"}
	opts := []Option{WithClock(clock.Now)}

	sessions := NewSessionManager(store, codec, SessionPolicy{
		AccessTTL:         5 * time.Minute,
		RefreshTTL:        12 * time.Hour,
		RotationThreshold: 4 * time.Hour,
		DefaultRedirect:   defaultRedirect,
	}, opts...)
	linker := NewCredentialLinker(store, LinkerPolicy{
		PasswordCost:    bcrypt.MinCost,
		VerificationTTL: 15 * time.Minute,
	}, opts...)

	return &fixture{
		store:    store,
		clock:    clock,
		codec:    codec,
		notifier: notifier,
		sessions: sessions,
		linker:   linker,
		auth:     NewAuthService(store, linker, sessions, notifier, links, nil, opts...),
		resets:   NewPasswordResetService(store, linker, sessions, notifier, links, nil, 10*time.Minute, opts...),
	}
}

// verifiedAccount signs up and verifies a local account
func (f *fixture) verifiedAccount(t *testing.T, email string) *domain.Account {
	t.Helper()
	ctx := context.Background()

	_, err := f.auth.SignUp(ctx, SignUpInput{Name: "Alice", Email: email, Password: testPassword, ConfirmPassword: testPassword})
	require.NoError(t, err)
	require.NoError(t, f.auth.VerifyEmail(ctx, f.notifier.lastVerification(t).Token()))

	return f.account(t, email)
}

// oauthAccount creates an account that only has a GitHub identity
func (f *fixture) oauthAccount(t *testing.T, email, githubID string) *domain.Account {
	t.Helper()
	account, err := f.linker.ResolveOAuthAccount(context.Background(), domain.ProviderGitHub, ExternalProfile{
		ExternalID: githubID,
		Email:      email,
		Name:       "Octo",
	})
	require.NoError(t, err)
	return account
}

func (f *fixture) account(t *testing.T, email string) *domain.Account {
	t.Helper()
	account, err := f.store.Repos().Accounts.FindByEmail(context.Background(), email)
	require.NoError(t, err)
	return account
}

func (f *fixture) startSession(t *testing.T, account *domain.Account) *Session {
	t.Helper()
	session, err := f.sessions.CreateSession(context.Background(),
		SessionSubject{PublicID: account.PublicID, Role: account.Role},
		domain.DeviceMeta{Name: "laptop"}, "")
	require.NoError(t, err)
	return session
}
