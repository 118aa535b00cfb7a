package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/auth-session-service/pkg/database"
	"github.com/redis/go-redis/v9"
)

// RateLimitDecision is the outcome of one rate limiter check
type RateLimitDecision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter handles rate limiting using Redis
type RateLimiter struct {
	redis *database.Redis
	now   func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(redis *database.Redis, opts ...Option) *RateLimiter {
	o := newOptions(opts)
	return &RateLimiter{redis: redis, now: o.now}
}

// Allow records a request against key and reports whether it fits in the
// sliding window. Rejected requests are not recorded.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitDecision, error) {
	now := r.now()
	windowStart := now.Add(-window)

	// Key format: "ratelimit:{key}"
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	var card *redis.IntCmd
	var oldest *redis.ZSliceCmd
	_, err := r.redis.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(windowStart.UnixMilli(), 10))
		card = pipe.ZCard(ctx, redisKey)
		oldest = pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
		return nil
	})
	if err != nil {
		return RateLimitDecision{}, fmt.Errorf("failed to read rate limit window: %w", err)
	}

	count := int(card.Val())
	if count >= limit {
		retryAfter := window
		if entries := oldest.Val(); len(entries) > 0 {
			oldestAt := time.UnixMilli(int64(entries[0].Score))
			retryAfter = oldestAt.Add(window).Sub(now)
		}
		return RateLimitDecision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	_, err = r.redis.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, redisKey, redis.Z{
			Score:  float64(now.UnixMilli()),
			Member: uuid.NewString(),
		})
		pipe.Expire(ctx, redisKey, window+time.Minute)
		return nil
	})
	if err != nil {
		return RateLimitDecision{}, fmt.Errorf("failed to record request: %w", err)
	}

	return RateLimitDecision{Allowed: true, Remaining: limit - count - 1}, nil
}
