package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/prperemyshlev/auth-session-service/internal/domain"
	"golang.org/x/oauth2"
)

// Profile is a provider user profile normalized to the fields accounts need
type Profile struct {
	ExternalID string
	Email      string
	Name       string
}

// Provider is an OAuth2 identity provider
type Provider interface {
	Name() domain.Provider
	Config() *oauth2.Config
	// FetchProfile reads the signed-in user through an authorized client
	FetchProfile(ctx context.Context, client *http.Client) (*Profile, error)
}

// ProviderOption overrides provider endpoints, for self-hosted
// installations and tests
type ProviderOption func(*providerConfig)

type providerConfig struct {
	endpoint   *oauth2.Endpoint
	apiBaseURL string
}

// WithEndpoint replaces the authorization and token URLs
func WithEndpoint(endpoint oauth2.Endpoint) ProviderOption {
	return func(c *providerConfig) { c.endpoint = &endpoint }
}

// WithAPIBaseURL replaces the base URL profile requests are sent to
func WithAPIBaseURL(url string) ProviderOption {
	return func(c *providerConfig) { c.apiBaseURL = url }
}

func applyProviderOptions(defaultEndpoint oauth2.Endpoint, defaultAPI string, opts []ProviderOption) (oauth2.Endpoint, string) {
	c := providerConfig{apiBaseURL: defaultAPI}
	for _, opt := range opts {
		opt(&c)
	}
	if c.endpoint != nil {
		return *c.endpoint, c.apiBaseURL
	}
	return defaultEndpoint, c.apiBaseURL
}

func getJSON(ctx context.Context, client *http.Client, url string, accept string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request to %s returned %d: %s", url, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}
