package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Intent is what the user set out to do when the flow began. It only
// selects the page errors are reported on.
type Intent string

const (
	IntentSignIn Intent = "signin"
	IntentSignUp Intent = "signup"
)

// ParseIntent reads an intent query value, defaulting to sign-in
func ParseIntent(raw string) Intent {
	if Intent(raw) == IntentSignUp {
		return IntentSignUp
	}
	return IntentSignIn
}

const csrfBytes = 32

type flowState struct {
	CSRF   string `json:"csrf"`
	Intent Intent `json:"intent"`
}

// newState returns an opaque state value binding a random CSRF nonce to
// the intent
func newState(intent Intent) (string, error) {
	buf := make([]byte, csrfBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	raw, err := json.Marshal(flowState{
		CSRF:   base64.RawURLEncoding.EncodeToString(buf),
		Intent: intent,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode state: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// IntentFromState extracts the intent from a state value. Unreadable
// states yield sign-in.
func IntentFromState(state string) Intent {
	raw, err := base64.RawURLEncoding.DecodeString(state)
	if err != nil {
		return IntentSignIn
	}

	var fs flowState
	if err := json.Unmarshal(raw, &fs); err != nil {
		return IntentSignIn
	}
	return ParseIntent(string(fs.Intent))
}
