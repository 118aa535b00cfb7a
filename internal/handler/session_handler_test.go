package handler

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignInSetsCookies(t *testing.T) {
	s := newServer(t)
	s.signedUp(t, "alice@example.com")

	rec := s.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{
		"email": "alice@example.com", "password": testPassword, "deviceName": "laptop",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "Bearer", body["tokenType"])
	assert.Equal(t, float64(300), body["expiresIn"])
	assert.Equal(t, frontendURL+"/dashboard", body["redirectTo"])
	assert.NotEmpty(t, body["accessToken"])
	assert.NotContains(t, rec.Body.String(), "refreshToken")

	refresh := cookie(rec, RefreshCookie)
	require.NotNil(t, refresh)
	assert.True(t, refresh.HttpOnly)
	assert.True(t, refresh.Secure)
	assert.Equal(t, http.SameSiteLaxMode, refresh.SameSite)
	assert.Equal(t, "/api/v1/sessions", refresh.Path)
	assert.Equal(t, int((12 * time.Hour).Seconds()), refresh.MaxAge)

	access := cookie(rec, AccessCookie)
	require.NotNil(t, access)
	assert.Equal(t, "/", access.Path)
	assert.Equal(t, 300, access.MaxAge)
}

func TestSignInErrors(t *testing.T) {
	s := newServer(t)
	s.signedUp(t, "alice@example.com")

	rec := s.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{"email": "alice@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/accounts", map[string]string{
		"name": "Bob", "email": "bob@example.com", "password": testPassword, "confirmPassword": testPassword,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{"email": "bob@example.com", "password": testPassword})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, CodeEmailNotVerified, decode(t, rec)["code"])

	rec = s.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{"email": "alice@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshAndRotation(t *testing.T) {
	s := newServer(t)
	s.signedUp(t, "alice@example.com")
	_, refresh := s.signIn(t, "alice@example.com")

	s.now = s.now.Add(time.Hour)
	rec := s.do(t, http.MethodPost, "/api/v1/sessions/refresh", nil, refresh)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Nil(t, cookie(rec, RefreshCookie), "no rotation before the threshold")
	assert.NotNil(t, cookie(rec, AccessCookie))

	s.now = s.now.Add(4 * time.Hour)
	rec = s.do(t, http.MethodPost, "/api/v1/sessions/refresh", nil, refresh)
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := cookie(rec, RefreshCookie)
	require.NotNil(t, rotated)
	assert.NotEqual(t, refresh.Value, rotated.Value)
	assert.Equal(t, int((7 * time.Hour).Seconds()), rotated.MaxAge, "rotation keeps the original expiry")

	rec = s.do(t, http.MethodPost, "/api/v1/sessions/refresh", nil, refresh)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeSignedOut, decode(t, rec)["code"])
	cleared := cookie(rec, RefreshCookie)
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)
}

func TestRefreshWithoutCookie(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/sessions/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignOut(t *testing.T) {
	s := newServer(t)
	s.signedUp(t, "alice@example.com")
	_, refresh := s.signIn(t, "alice@example.com")

	rec := s.do(t, http.MethodDelete, "/api/v1/sessions", nil, refresh)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])
	assert.Negative(t, cookie(rec, RefreshCookie).MaxAge)

	rec = s.do(t, http.MethodDelete, "/api/v1/sessions", nil, refresh)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestJWKS(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/.well-known/jwks.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	keys, ok := decode(t, rec)["keys"].([]any)
	require.True(t, ok)
	require.Len(t, keys, 1)
	key := keys[0].(map[string]any)
	assert.Equal(t, "RSA", key["kty"])
	assert.Equal(t, s.codec.KeyID(), key["kid"])
	assert.False(t, strings.Contains(rec.Body.String(), `"d"`), "no private material")
}
