package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prperemyshlev/auth-session-service/pkg/database"
)

// Notification purposes
const (
	PurposeVerification  = "verification"
	PurposePasswordReset = "password_reset"
)

// NotificationLimiter bounds how often an address receives a message
type NotificationLimiter interface {
	Allow(ctx context.Context, purpose, email string) (bool, error)
}

// NotificationThrottle allows one message per address and purpose per
// cooldown, tracked as a Redis key set with NX
type NotificationThrottle struct {
	redis    *database.Redis
	cooldown time.Duration
}

// NewNotificationThrottle creates a new notification throttle
func NewNotificationThrottle(redis *database.Redis, cooldown time.Duration) *NotificationThrottle {
	return &NotificationThrottle{redis: redis, cooldown: cooldown}
}

// Allow claims the cooldown slot for the address; false means a message was
// sent within the cooldown
func (t *NotificationThrottle) Allow(ctx context.Context, purpose, email string) (bool, error) {
	key := fmt.Sprintf("notify:%s:%s", purpose, strings.ToLower(email))

	ok, err := t.redis.Client.SetNX(ctx, key, "1", t.cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim notification slot: %w", err)
	}
	return ok, nil
}
