package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/auth-session-service/internal/dto"
	"github.com/prperemyshlev/auth-session-service/internal/service"
	"go.uber.org/zap"
)

// Error codes clients branch on
const (
	CodeNoToken          = "NO_TOKEN"
	CodeTokenExpired     = "TOKEN_EXPIRED"
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeForbidden        = "FORBIDDEN"
	CodeSignedOut        = "SIGNED_OUT"
	CodeEmailNotVerified = "EMAIL_NOT_VERIFIED"
	CodeRateLimited      = "RATE_LIMITED"
)

// writeError maps a service error to its HTTP response. Internal errors are
// logged and answered with a generic message.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: "Please correct the highlighted fields",
			Details: verr.Fields,
		})
		return
	}

	status, title, code := http.StatusInternalServerError, "Internal server error", ""
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		status, title = http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, service.ErrSignedOut):
		status, title, code = http.StatusUnauthorized, "Unauthorized", CodeSignedOut
	case errors.Is(err, service.ErrEmailNotVerified):
		status, title, code = http.StatusForbidden, "Forbidden", CodeEmailNotVerified
	case errors.Is(err, service.ErrInvalidOrExpiredToken):
		status, title = http.StatusBadRequest, "Bad request"
	case errors.Is(err, service.ErrAccountExists), errors.Is(err, service.ErrProviderConflict):
		status, title = http.StatusConflict, "Conflict"
	case errors.Is(err, service.ErrAccountNotFound):
		status, title = http.StatusNotFound, "Not found"
	case errors.Is(err, service.ErrNotificationFailed):
		status, title = http.StatusBadGateway, "Bad gateway"
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		message = service.ErrInternal.Error()
	}

	c.JSON(status, dto.ErrorResponse{Error: title, Message: message, Code: code})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Error:   "Bad request",
		Message: err.Error(),
	})
}
