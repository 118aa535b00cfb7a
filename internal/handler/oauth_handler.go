package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/auth-session-service/internal/domain"
	"github.com/prperemyshlev/auth-session-service/internal/dto"
	"github.com/prperemyshlev/auth-session-service/internal/oauth"
	"github.com/prperemyshlev/auth-session-service/internal/service"
	"go.uber.org/zap"
)

// OAuthHandler handles provider sign-in redirects
type OAuthHandler struct {
	login   *service.OAuthLogin
	cookies Cookies
	logger  *zap.Logger
}

// NewOAuthHandler creates a new OAuth handler
func NewOAuthHandler(login *service.OAuthLogin, cookies Cookies, logger *zap.Logger) *OAuthHandler {
	return &OAuthHandler{login: login, cookies: cookies, logger: logger}
}

// Start redirects the browser to the provider consent page
func (h *OAuthHandler) Start(c *gin.Context) {
	provider, ok := domain.ParseProvider(c.Param("provider"))
	if !ok || !provider.Federated() {
		notFoundProvider(c)
		return
	}

	authURL, err := h.login.Begin(provider, oauth.ParseIntent(c.Query("intent")), h.cookies.FlowSlots(c))
	if errors.Is(err, oauth.ErrUnknownProvider) {
		notFoundProvider(c)
		return
	}
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.Redirect(http.StatusFound, authURL)
}

// Callback completes the flow and redirects to the frontend, with a session
// cookie on success or an oerror parameter on failure
func (h *OAuthHandler) Callback(c *gin.Context) {
	provider, _ := domain.ParseProvider(c.Param("provider"))
	if provider == "" {
		provider = domain.Provider(c.Param("provider"))
	}

	session, redirect := h.login.Complete(c.Request.Context(), service.OAuthCallback{
		Provider: provider,
		Code:     c.Query("code"),
		State:    c.Query("state"),
		Error:    c.Query("error"),
	}, h.cookies.FlowSlots(c), deviceMeta(c, ""))

	if session != nil {
		h.cookies.SetRefresh(c, session.RefreshToken, session.RefreshExpiresAt)
		h.cookies.SetAccess(c, session.AccessToken, session.AccessExpiresAt)
	}

	c.Redirect(http.StatusFound, redirect)
}

func notFoundProvider(c *gin.Context) {
	c.JSON(http.StatusNotFound, dto.ErrorResponse{
		Error:   "Not found",
		Message: "Unknown sign-in provider",
	})
}
