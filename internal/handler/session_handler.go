package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/auth-session-service/internal/domain"
	"github.com/prperemyshlev/auth-session-service/internal/dto"
	"github.com/prperemyshlev/auth-session-service/internal/service"
	"go.uber.org/zap"
)

const tokenType = "Bearer"

// SessionHandler handles sign-in, refresh and sign-out
type SessionHandler struct {
	auth     service.AuthService
	sessions *service.SessionManager
	cookies  Cookies
	logger   *zap.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(auth service.AuthService, sessions *service.SessionManager, cookies Cookies, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		auth:     auth,
		sessions: sessions,
		cookies:  cookies,
		logger:   logger,
	}
}

// SignIn handles local sign-in
// @Summary Sign in
// @Description Authenticate with email and password and start a session
// @Tags sessions
// @Accept json
// @Produce json
// @Param request body dto.SignInRequest true "Sign-in request"
// @Success 200 {object} dto.SessionResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Router /sessions [post]
func (h *SessionHandler) SignIn(c *gin.Context) {
	var req dto.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	session, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password, deviceMeta(c, req.DeviceName))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.cookies.SetRefresh(c, session.RefreshToken, session.RefreshExpiresAt)
	h.cookies.SetAccess(c, session.AccessToken, session.AccessExpiresAt)

	c.JSON(http.StatusOK, dto.SessionResponse{
		AccessToken: session.AccessToken,
		TokenType:   tokenType,
		ExpiresIn:   h.expiresIn(session.AccessExpiresAt),
		RedirectTo:  session.RedirectTo,
	})
}

// Refresh mints a new access token from the refresh token cookie
// @Summary Refresh session
// @Tags sessions
// @Produce json
// @Success 200 {object} dto.SessionResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /sessions/refresh [post]
func (h *SessionHandler) Refresh(c *gin.Context) {
	refreshToken, _ := c.Cookie(RefreshCookie)

	result, err := h.sessions.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		if errors.Is(err, service.ErrSignedOut) {
			h.cookies.ClearSession(c)
		}
		writeError(c, h.logger, err)
		return
	}

	if result.Rotated {
		h.cookies.SetRefresh(c, result.RefreshToken, result.RefreshExpiresAt)
	}
	h.cookies.SetAccess(c, result.AccessToken, result.AccessExpiresAt)

	c.JSON(http.StatusOK, dto.SessionResponse{
		AccessToken: result.AccessToken,
		TokenType:   tokenType,
		ExpiresIn:   h.expiresIn(result.AccessExpiresAt),
	})
}

// SignOut destroys the session of the refresh token cookie
// @Summary Sign out
// @Tags sessions
// @Produce json
// @Success 200 {object} dto.SuccessResponse
// @Failure 401 {object} dto.SuccessResponse
// @Router /sessions [delete]
func (h *SessionHandler) SignOut(c *gin.Context) {
	refreshToken, _ := c.Cookie(RefreshCookie)

	destroyed, err := h.sessions.Destroy(c.Request.Context(), refreshToken)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.cookies.ClearSession(c)

	if !destroyed {
		c.JSON(http.StatusUnauthorized, dto.SuccessResponse{Success: false, Message: "No active session"})
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true, Message: "Signed out"})
}

func (h *SessionHandler) expiresIn(t time.Time) int {
	return secondsUntil(h.cookies.now(), t)
}

func deviceMeta(c *gin.Context, name string) domain.DeviceMeta {
	return domain.DeviceMeta{
		Name:      name,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	}
}
