package oauth

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/prperemyshlev/auth-session-service/internal/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	githubAPIURL     = "https://api.github.com"
	githubAcceptJSON = "application/vnd.github+json"
)

// GitHub is the GitHub identity provider
type GitHub struct {
	config *oauth2.Config
	apiURL string
}

// NewGitHub creates the GitHub provider
func NewGitHub(clientID, clientSecret, redirectURL string, opts ...ProviderOption) *GitHub {
	endpoint, apiURL := applyProviderOptions(endpoints.GitHub, githubAPIURL, opts)
	return &GitHub{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		apiURL: apiURL,
	}
}

func (g *GitHub) Name() domain.Provider {
	return domain.ProviderGitHub
}

func (g *GitHub) Config() *oauth2.Config {
	return g.config
}

type githubUser struct {
	ID    int64   `json:"id"`
	Login string  `json:"login"`
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// FetchProfile reads /user, falling back to /user/emails when the public
// profile hides the address
func (g *GitHub) FetchProfile(ctx context.Context, client *http.Client) (*Profile, error) {
	var user githubUser
	if err := getJSON(ctx, client, g.apiURL+"/user", githubAcceptJSON, &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, errors.New("github profile has no id")
	}

	email := ""
	if user.Email != nil {
		email = *user.Email
	}
	if email == "" {
		var emails []githubEmail
		if err := getJSON(ctx, client, g.apiURL+"/user/emails", githubAcceptJSON, &emails); err != nil {
			return nil, err
		}
		email = primaryEmail(emails)
	}

	name := user.Login
	if user.Name != nil && *user.Name != "" {
		name = *user.Name
	}

	return &Profile{
		ExternalID: strconv.FormatInt(user.ID, 10),
		Email:      email,
		Name:       name,
	}, nil
}

// primaryEmail picks the primary verified address, else any verified one
func primaryEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email
		}
	}
	return ""
}
