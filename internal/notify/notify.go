// Package notify delivers verification and password reset links to account
// owners.
package notify

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"
)

// Notifier sends account lifecycle messages. Implementations must be safe
// for concurrent use.
type Notifier interface {
	SendVerification(ctx context.Context, to, name, link string) error
	SendPasswordReset(ctx context.Context, to, name, link string) error
}

// Links builds the URLs embedded in notifications
type Links struct {
	BaseURL     string
	FrontendURL string
}

// Verification returns the link that confirms an email address
func (l Links) Verification(token string) string {
	return fmt.Sprintf("%s/api/v1/verify-email?token=%s", l.BaseURL, url.QueryEscape(token))
}

// PasswordReset returns the frontend page that accepts a reset token
func (l Links) PasswordReset(token string) string {
	return fmt.Sprintf("%s/reset-password?token=%s", l.FrontendURL, url.QueryEscape(token))
}

// LogNotifier writes notifications to the log instead of delivering them
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier for development environments
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendVerification(_ context.Context, to, name, link string) error {
	n.logger.Info("Verify your email address",
		zap.String("to", to),
		zap.String("name", name),
		zap.String("link", link),
	)
	return nil
}

func (n *LogNotifier) SendPasswordReset(_ context.Context, to, name, link string) error {
	n.logger.Info("Reset your password",
		zap.String("to", to),
		zap.String("name", name),
		zap.String("link", link),
	)
	return nil
}
