package service

import (
	"time"

	"github.com/prperemyshlev/auth-session-service/pkg/observability"
	"go.uber.org/zap"
)

// Option configures a service
type Option func(*options)

type options struct {
	now     func() time.Time
	logger  *zap.Logger
	metrics *observability.AuthMetrics
}

// WithClock replaces the wall clock used for expiry and rotation decisions
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the service logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the recorder for session lifecycle counters
func WithMetrics(metrics *observability.AuthMetrics) Option {
	return func(o *options) { o.metrics = metrics }
}

func newOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
