package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/auth-session-service/internal/dto"
	"github.com/prperemyshlev/auth-session-service/internal/service"
	"go.uber.org/zap"
)

const (
	msgVerificationSent = "Account created, please check your email to verify your address"
	msgLocalLinked      = "Password added to your account, please check your email to verify your address"
	msgPending          = "Email verification is pending, please check your email or request a new link"
	msgResendGeneric    = "If this address needs verification, a new link has been sent"
	msgResetGeneric     = "If an account exists for this address, a reset link has been sent"
)

// AccountHandler handles sign-up, email verification and passwords
type AccountHandler struct {
	auth        service.AuthService
	resets      service.PasswordResetService
	cookies     Cookies
	frontendURL string
	logger      *zap.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(auth service.AuthService, resets service.PasswordResetService, cookies Cookies, frontendURL string, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		auth:        auth,
		resets:      resets,
		cookies:     cookies,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// SignUp handles local sign-up
// @Summary Create account
// @Description Register a password for an email address and send a verification link
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body dto.SignUpRequest true "Sign-up request"
// @Success 201 {object} dto.SuccessResponse
// @Success 202 {object} dto.SuccessResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /accounts [post]
func (h *AccountHandler) SignUp(c *gin.Context) {
	var req dto.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	outcome, err := h.auth.SignUp(c.Request.Context(), service.SignUpInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	switch {
	case errors.Is(err, service.ErrVerificationPending):
		c.JSON(http.StatusAccepted, dto.SuccessResponse{Success: false, Message: msgPending})
		return
	case err != nil:
		writeError(c, h.logger, err)
		return
	}

	message := msgVerificationSent
	if outcome == service.SignUpLinked {
		message = msgLocalLinked
	}
	c.JSON(http.StatusCreated, dto.SuccessResponse{Success: true, Message: message})
}

// VerifyEmail consumes the token of a verification link and sends the
// browser to the frontend result page
// @Summary Verify email
// @Tags accounts
// @Param token query string true "Verification token"
// @Success 302
// @Router /verify-email [get]
func (h *AccountHandler) VerifyEmail(c *gin.Context) {
	status := "success"
	if err := h.auth.VerifyEmail(c.Request.Context(), c.Query("token")); err != nil {
		if !errors.Is(err, service.ErrInvalidOrExpiredToken) {
			h.logger.Error("Email verification failed", zap.Error(err))
		}
		status = "failed"
	}

	c.Redirect(http.StatusFound, h.frontendURL+"/verify-email?status="+status)
}

// ResendVerification sends a new verification link. The answer does not
// reveal whether the address has an account.
// @Summary Resend verification email
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body dto.EmailRequest true "Email"
// @Success 200 {object} dto.SuccessResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /verification/resend [post]
func (h *AccountHandler) ResendVerification(c *gin.Context) {
	var req dto.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	err := h.auth.ResendVerification(c.Request.Context(), req.Email)
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(c, h.logger, err)
		return
	case err != nil && !errors.Is(err, service.ErrNothingToVerify):
		h.logger.Warn("Resend verification failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true, Message: msgResendGeneric})
}

// RequestPasswordReset emails a reset link
// @Summary Request password reset
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body dto.EmailRequest true "Email"
// @Success 200 {object} dto.SuccessResponse
// @Router /password-reset/request [post]
func (h *AccountHandler) RequestPasswordReset(c *gin.Context) {
	var req dto.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.resets.RequestReset(c.Request.Context(), req.Email); err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true, Message: msgResetGeneric})
}

// ConfirmPasswordReset sets a new password from a reset token
// @Summary Confirm password reset
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body dto.ResetPasswordRequest true "Reset"
// @Success 200 {object} dto.SuccessResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /password-reset/confirm [post]
func (h *AccountHandler) ConfirmPasswordReset(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.resets.ConfirmReset(c.Request.Context(), req.Token, req.Password, req.ConfirmPassword); err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true, Message: "Password updated, please sign in"})
}

// ChangePassword replaces the password of the signed-in account and ends
// all of its sessions
// @Summary Change password
// @Tags accounts
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body dto.ChangePasswordRequest true "Passwords"
// @Success 200 {object} dto.SuccessResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /account/password [post]
func (h *AccountHandler) ChangePassword(c *gin.Context) {
	identity, ok := IdentityFrom(c)
	if !ok {
		abort(c, http.StatusUnauthorized, CodeNoToken, "Authorization is required")
		return
	}

	var req dto.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	err := h.auth.ChangePassword(c.Request.Context(), identity.PublicID, req.CurrentPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.cookies.ClearSession(c)
	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true, Message: "Password changed, please sign in again"})
}

// Me returns the signed-in account
// @Summary Current account
// @Tags accounts
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.AccountResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /me [get]
func (h *AccountHandler) Me(c *gin.Context) {
	identity, ok := IdentityFrom(c)
	if !ok {
		abort(c, http.StatusUnauthorized, CodeNoToken, "Authorization is required")
		return
	}

	account, err := h.auth.GetAccount(c.Request.Context(), identity.PublicID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewAccountResponse(account))
}
