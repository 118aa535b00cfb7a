package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/auth-session-service/internal/tokens"
)

// JWKSHandler publishes the access token verification key
func JWKSHandler(codec *tokens.Codec) gin.HandlerFunc {
	jwks := codec.PublicJWKS()
	return func(c *gin.Context) {
		c.Header("Cache-Control", "public, max-age=300")
		c.JSON(http.StatusOK, jwks)
	}
}
