package dto

// SignUpRequest represents a local sign-up request
type SignUpRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirmPassword"`
}

// SignInRequest represents a local sign-in request
type SignInRequest struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	DeviceName string `json:"deviceName"`
}

// EmailRequest carries a single email address (resend verification,
// password reset request)
type EmailRequest struct {
	Email string `json:"email" binding:"required"`
}

// ResetPasswordRequest represents a password reset confirmation
type ResetPasswordRequest struct {
	Token           string `json:"token" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirmPassword"`
}

// ChangePasswordRequest represents a password change by a signed-in user
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
	ConfirmPassword string `json:"confirmPassword"`
}
