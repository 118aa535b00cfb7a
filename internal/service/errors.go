package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Errors crossing the service boundary. Store and network failures are
// reported as ErrInternal; the underlying error is logged, never returned.
var (
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrEmailNotVerified      = errors.New("email address is not verified")
	ErrSignedOut             = errors.New("session expired, please sign in again")
	ErrInvalidOrExpiredToken = errors.New("token is invalid or has expired")
	ErrAccountExists         = errors.New("an account already exists with this email, please sign in instead")
	ErrVerificationPending   = errors.New("email verification is pending for this account")
	ErrNotificationFailed    = errors.New("failed to send email, please provide a valid email address or contact support")
	ErrNothingToVerify       = errors.New("no pending verification for this email")
	ErrProviderConflict      = errors.New("this provider account is linked to another user")
	ErrAccountNotFound       = errors.New("account not found")
	ErrInternal              = errors.New("internal server error")
)

// ValidationError reports rejected input field by field
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func validationError(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// internalError hides err behind ErrInternal
func internalError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInternal, op, err)
}
