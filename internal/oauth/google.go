package oauth

import (
	"context"
	"errors"
	"net/http"

	"github.com/prperemyshlev/auth-session-service/internal/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const googleAPIURL = "https://www.googleapis.com"

// Google is the Google identity provider
type Google struct {
	config *oauth2.Config
	apiURL string
}

// NewGoogle creates the Google provider
func NewGoogle(clientID, clientSecret, redirectURL string, opts ...ProviderOption) *Google {
	endpoint, apiURL := applyProviderOptions(endpoints.Google, googleAPIURL, opts)
	return &Google{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", "profile", "email"},
		},
		apiURL: apiURL,
	}
}

func (g *Google) Name() domain.Provider {
	return domain.ProviderGoogle
}

func (g *Google) Config() *oauth2.Config {
	return g.config
}

type googleUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

// FetchProfile reads the v2 userinfo endpoint
func (g *Google) FetchProfile(ctx context.Context, client *http.Client) (*Profile, error) {
	var user googleUser
	if err := getJSON(ctx, client, g.apiURL+"/oauth2/v2/userinfo", "application/json", &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, errors.New("google profile has no id")
	}

	// an unverified address must not select an account
	email := user.Email
	if !user.VerifiedEmail {
		email = ""
	}

	name := user.Name
	if name == "" {
		name = email
	}

	return &Profile{
		ExternalID: user.ID,
		Email:      email,
		Name:       name,
	}, nil
}
