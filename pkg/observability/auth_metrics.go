package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of the session lifecycle counters
const MeterName = "github.com/prperemyshlev/auth-session-service"

// AuthMetrics records session lifecycle events. A nil *AuthMetrics is a
// valid no-op recorder.
type AuthMetrics struct {
	sessionsCreated   otelmetric.Int64Counter
	sessionsRefreshed otelmetric.Int64Counter
	sessionsSignedOut otelmetric.Int64Counter
	signInFailures    otelmetric.Int64Counter
	oauthCallbacks    otelmetric.Int64Counter
}

// NewAuthMetrics registers the counters on the given meter provider
func NewAuthMetrics(provider otelmetric.MeterProvider) (*AuthMetrics, error) {
	meter := provider.Meter(MeterName)
	m := &AuthMetrics{}

	counters := []struct {
		dst  *otelmetric.Int64Counter
		name string
		desc string
	}{
		{&m.sessionsCreated, "auth.sessions.created", "Sessions started"},
		{&m.sessionsRefreshed, "auth.sessions.refreshed", "Access tokens minted from a refresh token"},
		{&m.sessionsSignedOut, "auth.sessions.signed_out", "Refresh attempts answered with sign in again"},
		{&m.signInFailures, "auth.signin.failures", "Rejected local sign-in attempts"},
		{&m.oauthCallbacks, "auth.oauth.callbacks", "Completed OAuth callbacks"},
	}

	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, otelmetric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("failed to create counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}

	return m, nil
}

func (m *AuthMetrics) SessionCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsCreated.Add(ctx, 1)
}

func (m *AuthMetrics) SessionRefreshed(ctx context.Context, rotated bool) {
	if m == nil {
		return
	}
	m.sessionsRefreshed.Add(ctx, 1, otelmetric.WithAttributes(attribute.Bool("rotated", rotated)))
}

func (m *AuthMetrics) SignedOut(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.sessionsSignedOut.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("reason", reason)))
}

func (m *AuthMetrics) SignInFailed(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.signInFailures.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("reason", reason)))
}

func (m *AuthMetrics) OAuthCallback(ctx context.Context, provider, outcome string) {
	if m == nil {
		return
	}
	m.oauthCallbacks.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	))
}
