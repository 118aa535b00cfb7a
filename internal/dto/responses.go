package dto

import (
	"time"

	"github.com/prperemyshlev/auth-session-service/internal/domain"
)

// SessionResponse represents a started or refreshed session. The refresh
// token travels only in its cookie.
type SessionResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int    `json:"expiresIn"`
	RedirectTo  string `json:"redirectTo,omitempty"`
}

// AccountResponse represents the signed-in account
type AccountResponse struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Email         string   `json:"email"`
	Role          string   `json:"role"`
	Providers     []string `json:"providers"`
	EmailVerified bool     `json:"emailVerified"`
	CreatedAt     string   `json:"createdAt"`
}

// NewAccountResponse converts an account for output
func NewAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:            a.PublicID,
		Name:          a.Name,
		Email:         a.Email,
		Role:          string(a.Role),
		Providers:     a.Providers.Strings(),
		EmailVerified: a.IsEmailVerified(),
		CreatedAt:     a.CreatedAt.Format(time.RFC3339),
	}
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
