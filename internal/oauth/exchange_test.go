package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prperemyshlev/auth-session-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type mapSlots map[string]string

func (m mapSlots) Put(name, value string) { m[name] = value }

func (m mapSlots) Take(name string) (string, bool) {
	v, ok := m[name]
	delete(m, name)
	return v, ok
}

type fakeGitHub struct {
	server       *httptest.Server
	lastVerifier string
	publicEmail  bool
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	f := &fakeGitHub{}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good-code" {
			http.Error(w, `{"error":"bad_verification_code"}`, http.StatusBadRequest)
			return
		}
		f.lastVerifier = r.PostForm.Get("code_verifier")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "gh-access",
			"token_type":   "bearer",
		})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gh-access", r.Header.Get("Authorization"))
		user := map[string]any{"id": 4242, "login": "octocat", "name": nil, "email": nil}
		if f.publicEmail {
			user["email"] = "Octo@Example.com"
		}
		_ = json.NewEncoder(w).Encode(user)
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "octo@example.com", "primary": true, "verified": true},
		})
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGitHub) provider() *GitHub {
	return NewGitHub("client", "secret", "http://localhost/callback",
		WithEndpoint(oauth2.Endpoint{
			AuthURL:   f.server.URL + "/authorize",
			TokenURL:  f.server.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}),
		WithAPIBaseURL(f.server.URL),
	)
}

func TestBeginStoresStateAndVerifier(t *testing.T) {
	f := newFakeGitHub(t)
	ex := NewExchange(0, f.provider())
	slots := mapSlots{}

	authURL, err := ex.Begin(domain.ProviderGitHub, IntentSignUp, slots)
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, slots[StateSlot], q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, oauth2.S256ChallengeFromVerifier(slots[VerifierSlot]), q.Get("code_challenge"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, IntentSignUp, IntentFromState(q.Get("state")))
}

func TestBeginUnknownProvider(t *testing.T) {
	ex := NewExchange(0)

	_, err := ex.Begin(domain.ProviderGoogle, IntentSignIn, mapSlots{})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestCompleteSuccess(t *testing.T) {
	f := newFakeGitHub(t)
	ex := NewExchange(0, f.provider())
	slots := mapSlots{}

	_, err := ex.Begin(domain.ProviderGitHub, IntentSignIn, slots)
	require.NoError(t, err)
	state, verifier := slots[StateSlot], slots[VerifierSlot]

	profile, intent, err := ex.Complete(context.Background(), domain.ProviderGitHub, "good-code", state, slots)
	require.NoError(t, err)

	assert.Equal(t, "4242", profile.ExternalID)
	assert.Equal(t, "octo@example.com", profile.Email)
	assert.Equal(t, "octocat", profile.Name)
	assert.Equal(t, verifier, f.lastVerifier)
	assert.Equal(t, IntentSignIn, intent)
	assert.Empty(t, slots)
}

func TestCompletePublicEmailIsNormalized(t *testing.T) {
	f := newFakeGitHub(t)
	f.publicEmail = true
	ex := NewExchange(0, f.provider())
	slots := mapSlots{}

	_, err := ex.Begin(domain.ProviderGitHub, IntentSignIn, slots)
	require.NoError(t, err)

	profile, _, err := ex.Complete(context.Background(), domain.ProviderGitHub, "good-code", slots[StateSlot], slots)
	require.NoError(t, err)
	assert.Equal(t, "octo@example.com", profile.Email)
}

func TestCompleteStateMismatch(t *testing.T) {
	f := newFakeGitHub(t)
	ex := NewExchange(0, f.provider())
	slots := mapSlots{StateSlot: "right-state", VerifierSlot: oauth2.GenerateVerifier()}

	_, _, err := ex.Complete(context.Background(), domain.ProviderGitHub, "good-code", "wrong-state", slots)
	assert.ErrorIs(t, err, ErrStateMismatch)
	assert.Empty(t, f.lastVerifier, "code must not be exchanged")
	assert.Empty(t, slots)
}

func TestCompleteWithoutStoredFlow(t *testing.T) {
	f := newFakeGitHub(t)
	ex := NewExchange(0, f.provider())

	_, _, err := ex.Complete(context.Background(), domain.ProviderGitHub, "good-code", "some-state", mapSlots{})
	assert.ErrorIs(t, err, ErrFlowNotStarted)

	_, _, err = ex.Complete(context.Background(), domain.ProviderGitHub, "good-code", "s", mapSlots{StateSlot: "s"})
	assert.ErrorIs(t, err, ErrFlowNotStarted)
}

func TestCompleteProviderRejectsCode(t *testing.T) {
	f := newFakeGitHub(t)
	ex := NewExchange(0, f.provider())
	slots := mapSlots{}

	_, err := ex.Begin(domain.ProviderGitHub, IntentSignIn, slots)
	require.NoError(t, err)

	_, _, err = ex.Complete(context.Background(), domain.ProviderGitHub, "bad-code", slots[StateSlot], slots)
	assert.ErrorIs(t, err, ErrProviderFailed)
}

func TestIntentFromState(t *testing.T) {
	state, err := newState(IntentSignUp)
	require.NoError(t, err)

	assert.Equal(t, IntentSignUp, IntentFromState(state))
	assert.Equal(t, IntentSignIn, IntentFromState("%%%"))
	assert.Equal(t, IntentSignIn, IntentFromState(""))
	assert.Equal(t, IntentSignIn, ParseIntent("bogus"))
}
