package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/auth-session-service/internal/oauth"
)

const (
	RefreshCookie = "refresh_token"
	AccessCookie  = "access_token"

	refreshCookiePath = "/api/v1/sessions"
	oauthCookiePath   = "/api/v1/oauth"
)

// Cookies writes the session and OAuth flow cookies
type Cookies struct {
	Secure  bool
	FlowTTL time.Duration
	Now     func() time.Time
}

func (k Cookies) now() time.Time {
	if k.Now != nil {
		return k.Now()
	}
	return time.Now()
}

func (k Cookies) set(c *gin.Context, name, value, path string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, path, "", k.Secure, true)
}

// SetRefresh stores the refresh token until its record expires
func (k Cookies) SetRefresh(c *gin.Context, value string, expiresAt time.Time) {
	k.set(c, RefreshCookie, value, refreshCookiePath, secondsUntil(k.now(), expiresAt))
}

// SetAccess mirrors the access token for browser clients
func (k Cookies) SetAccess(c *gin.Context, value string, expiresAt time.Time) {
	k.set(c, AccessCookie, value, "/", secondsUntil(k.now(), expiresAt))
}

// ClearSession removes both session cookies
func (k Cookies) ClearSession(c *gin.Context) {
	k.set(c, RefreshCookie, "", refreshCookiePath, -1)
	k.set(c, AccessCookie, "", "/", -1)
}

// FlowSlots keeps OAuth flow secrets in path-scoped cookies
func (k Cookies) FlowSlots(c *gin.Context) oauth.FlowSlots {
	return &cookieSlots{c: c, cookies: k}
}

type cookieSlots struct {
	c       *gin.Context
	cookies Cookies
}

func (s *cookieSlots) Put(name, value string) {
	s.cookies.set(s.c, name, value, oauthCookiePath, int(s.cookies.FlowTTL.Seconds()))
}

func (s *cookieSlots) Take(name string) (string, bool) {
	value, err := s.c.Cookie(name)
	s.cookies.set(s.c, name, "", oauthCookiePath, -1)
	if err != nil || value == "" {
		return "", false
	}
	return value, true
}

// secondsUntil rounds to the nearest second; -1 expires the cookie
func secondsUntil(now, t time.Time) int {
	seconds := int(t.Sub(now).Round(time.Second) / time.Second)
	if seconds <= 0 {
		return -1
	}
	return seconds
}
