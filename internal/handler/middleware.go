package handler

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/auth-session-service/internal/domain"
	"github.com/prperemyshlev/auth-session-service/internal/dto"
	"github.com/prperemyshlev/auth-session-service/internal/tokens"
)

const identityKey = "identity"

// AccessVerifier checks access tokens
type AccessVerifier interface {
	VerifyAccessToken(token string) tokens.Verification
}

// AuthMiddleware validates the access token, from the Authorization header
// or the access token cookie, and adds the identity to the context. When
// roles are given the identity must hold one of them.
func AuthMiddleware(verifier AccessVerifier, roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abort(c, http.StatusUnauthorized, CodeNoToken, "Authorization is required")
			return
		}

		v := verifier.VerifyAccessToken(token)
		switch v.Status {
		case tokens.StatusValid:
		case tokens.StatusExpired:
			abort(c, http.StatusUnauthorized, CodeTokenExpired, "Access token has expired")
			return
		default:
			abort(c, http.StatusUnauthorized, CodeInvalidToken, "Invalid access token")
			return
		}

		if len(roles) > 0 && !slices.Contains(roles, v.Identity.Role) {
			abort(c, http.StatusForbidden, CodeForbidden, "Insufficient permissions")
			return
		}

		c.Set(identityKey, v.Identity)
		c.Next()
	}
}

// IdentityFrom returns the identity AuthMiddleware stored
func IdentityFrom(c *gin.Context) (tokens.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return tokens.Identity{}, false
	}
	identity, ok := v.(tokens.Identity)
	return identity, ok
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}

	token, _ := c.Cookie(AccessCookie)
	return token
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, dto.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
	})
}
