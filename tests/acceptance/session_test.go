//go:build acceptance

package acceptance

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/prperemyshlev/auth-session-service/internal/dto"
)

const (
	testEmail    = "Jane.Doe@Example.com"
	testPassword = "Password123"
)

func (s *Suite) request(method, path string, body any, cookies ...*http.Cookie) *http.Response {
	var payload bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&payload).Encode(body))
	}

	req, err := http.NewRequest(method, s.BaseURL+path, &payload)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *Suite) cookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// lastLink returns the most recent link handed to the notifier
func (s *Suite) lastLink() string {
	entries := s.Logs.FilterFieldKey("link").All()
	s.Require().NotEmpty(entries, "no notification was sent")
	link, ok := entries[len(entries)-1].ContextMap()["link"].(string)
	s.Require().True(ok)
	return link
}

func (s *Suite) signUpAndVerify() {
	resp := s.request(http.MethodPost, "/api/v1/accounts", dto.SignUpRequest{
		Name:            "Jane",
		Email:           testEmail,
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	link := s.lastLink()
	s.Require().True(strings.HasPrefix(link, s.BaseURL+"/api/v1/verify-email?token="))

	verify, err := s.client.Get(link)
	s.Require().NoError(err)
	defer verify.Body.Close()

	s.Require().Equal(http.StatusFound, verify.StatusCode)
	s.Equal(frontendURL+"/verify-email?status=success", verify.Header.Get("Location"))
}

func (s *Suite) signIn() (*dto.SessionResponse, *http.Cookie) {
	resp := s.request(http.MethodPost, "/api/v1/sessions", dto.SignInRequest{
		Email:      "jane.doe@example.com",
		Password:   testPassword,
		DeviceName: "acceptance",
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var session dto.SessionResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&session))

	refresh := s.cookie(resp, "refresh_token")
	s.Require().NotNil(refresh)
	s.True(refresh.HttpOnly)
	return &session, refresh
}

func (s *Suite) TestSignInRequiresVerifiedEmail() {
	resp := s.request(http.MethodPost, "/api/v1/accounts", dto.SignUpRequest{
		Email:           testEmail,
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	resp = s.request(http.MethodPost, "/api/v1/sessions", dto.SignInRequest{
		Email:    testEmail,
		Password: testPassword,
	})
	s.Equal(http.StatusForbidden, resp.StatusCode)

	var errResp dto.ErrorResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&errResp))
	s.Equal("EMAIL_NOT_VERIFIED", errResp.Code)
}

func (s *Suite) TestSignUpTwiceConflicts() {
	s.signUpAndVerify()

	resp := s.request(http.MethodPost, "/api/v1/accounts", dto.SignUpRequest{
		Email:           testEmail,
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	s.Equal(http.StatusConflict, resp.StatusCode)
}

func (s *Suite) TestSessionLifecycle() {
	s.signUpAndVerify()
	session, refresh := s.signIn()

	s.Equal("Bearer", session.TokenType)
	s.Equal(frontendURL+"/dashboard", session.RedirectTo)

	me := s.request(http.MethodGet, "/api/v1/me", nil, &http.Cookie{Name: "access_token", Value: session.AccessToken})
	s.Require().Equal(http.StatusOK, me.StatusCode)

	var account dto.AccountResponse
	s.Require().NoError(json.NewDecoder(me.Body).Decode(&account))
	s.Equal("jane.doe@example.com", account.Email)
	s.True(account.EmailVerified)

	refreshed := s.request(http.MethodPost, "/api/v1/sessions/refresh", nil, refresh)
	s.Require().Equal(http.StatusOK, refreshed.StatusCode)
	s.Nil(s.cookie(refreshed, "refresh_token"), "a young refresh token is not rotated")

	out := s.request(http.MethodDelete, "/api/v1/sessions", nil, refresh)
	s.Require().Equal(http.StatusOK, out.StatusCode)

	again := s.request(http.MethodPost, "/api/v1/sessions/refresh", nil, refresh)
	s.Equal(http.StatusUnauthorized, again.StatusCode)
}

func (s *Suite) TestChangePasswordRevokesSessions() {
	s.signUpAndVerify()
	session, refresh := s.signIn()

	req, err := http.NewRequest(http.MethodPost, s.BaseURL+"/api/v1/account/password",
		strings.NewReader(`{"currentPassword":"Password123","newPassword":"Different456","confirmPassword":"Different456"}`))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)

	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	stale := s.request(http.MethodPost, "/api/v1/sessions/refresh", nil, refresh)
	s.Equal(http.StatusUnauthorized, stale.StatusCode)

	fresh := s.request(http.MethodPost, "/api/v1/sessions", dto.SignInRequest{
		Email:    testEmail,
		Password: "Different456",
	})
	s.Equal(http.StatusOK, fresh.StatusCode)
}

func (s *Suite) TestPasswordReset() {
	s.signUpAndVerify()
	_, refresh := s.signIn()

	resp := s.request(http.MethodPost, "/api/v1/password-reset/request", dto.EmailRequest{Email: testEmail})
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	link := s.lastLink()
	s.Require().True(strings.HasPrefix(link, frontendURL+"/reset-password?token="))
	token := strings.TrimPrefix(link, frontendURL+"/reset-password?token=")

	confirm := s.request(http.MethodPost, "/api/v1/password-reset/confirm", dto.ResetPasswordRequest{
		Token:           token,
		Password:        "Different456",
		ConfirmPassword: "Different456",
	})
	s.Require().Equal(http.StatusOK, confirm.StatusCode)

	reused := s.request(http.MethodPost, "/api/v1/password-reset/confirm", dto.ResetPasswordRequest{
		Token:           token,
		Password:        "Another789",
		ConfirmPassword: "Another789",
	})
	s.Equal(http.StatusBadRequest, reused.StatusCode)

	stale := s.request(http.MethodPost, "/api/v1/sessions/refresh", nil, refresh)
	s.Equal(http.StatusUnauthorized, stale.StatusCode)
}

func (s *Suite) TestUnknownOAuthProvider() {
	resp := s.request(http.MethodGet, "/api/v1/oauth/github/start", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}
