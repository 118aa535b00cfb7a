package service

import (
	"context"

	"github.com/prperemyshlev/auth-session-service/internal/domain"
)

// AuthService defines the local credential operations
type AuthService interface {
	SignUp(ctx context.Context, in SignUpInput) (SignUpOutcome, error)
	SignIn(ctx context.Context, email, password string, device domain.DeviceMeta) (*Session, error)
	ResendVerification(ctx context.Context, email string) error
	VerifyEmail(ctx context.Context, token string) error
	ChangePassword(ctx context.Context, publicID, current, next, confirm string) error
	GetAccount(ctx context.Context, publicID string) (*domain.Account, error)
}

// PasswordResetService defines the forgotten password flow
type PasswordResetService interface {
	RequestReset(ctx context.Context, email string) error
	ConfirmReset(ctx context.Context, token, password, confirm string) error
}
