package domain

import (
	"slices"
	"time"
)

// Role is the authorization role carried in access tokens
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Provider is an authentication method that can be linked to an account
type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
)

// Federated reports whether p is an external identity provider
func (p Provider) Federated() bool {
	return p == ProviderGoogle || p == ProviderGitHub
}

// ParseProvider converts a path or query value to a Provider
func ParseProvider(s string) (Provider, bool) {
	switch p := Provider(s); p {
	case ProviderLocal, ProviderGoogle, ProviderGitHub:
		return p, true
	}
	return "", false
}

// ProviderSet is the set of authentication methods linked to an account.
// Members are unique; order carries no meaning.
type ProviderSet []Provider

// Has reports whether p is a member of the set
func (s ProviderSet) Has(p Provider) bool {
	return slices.Contains(s, p)
}

// Add returns the set with p included
func (s ProviderSet) Add(p Provider) ProviderSet {
	if s.Has(p) {
		return s
	}
	return append(slices.Clone(s), p)
}

// Remove returns the set without p
func (s ProviderSet) Remove(p Provider) ProviderSet {
	return slices.DeleteFunc(slices.Clone(s), func(m Provider) bool { return m == p })
}

// Strings returns the members as plain strings, for array columns
func (s ProviderSet) Strings() []string {
	out := make([]string, len(s))
	for i, p := range s {
		out[i] = string(p)
	}
	return out
}

// Account represents a user account in the system
type Account struct {
	ID            int64       `json:"-" db:"id"`
	PublicID      string      `json:"id" db:"public_id"`
	Name          string      `json:"name" db:"name"`
	Email         string      `json:"email" db:"email"`
	Role          Role        `json:"role" db:"role"`
	Providers     ProviderSet `json:"auth_providers" db:"auth_providers"`
	PasswordHash  *string     `json:"-" db:"password_hash"`
	EmailVerified *bool       `json:"email_verified" db:"email_verified"`
	GitHubID      *string     `json:"-" db:"github_id"`
	GoogleID      *string     `json:"-" db:"google_id"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
}

// HasLocalCredential reports whether the account can sign in with a password
func (a *Account) HasLocalCredential() bool {
	return a.Providers.Has(ProviderLocal) && a.PasswordHash != nil
}

// IsEmailVerified reports whether the local email address has been confirmed
func (a *Account) IsEmailVerified() bool {
	return a.EmailVerified != nil && *a.EmailVerified
}

// ExternalID returns the provider-specific id linked to the account
func (a *Account) ExternalID(p Provider) *string {
	switch p {
	case ProviderGitHub:
		return a.GitHubID
	case ProviderGoogle:
		return a.GoogleID
	}
	return nil
}

// ExternalID links a federated provider id to an account
type ExternalID struct {
	Provider Provider
	ID       string
}

// CredentialUpdate describes a single atomic change to an account's
// credential fields. Nil and empty fields are left untouched.
type CredentialUpdate struct {
	PasswordHash       *string
	ClearPasswordHash  bool
	EmailVerified      *bool
	ClearEmailVerified bool
	ProvidersAdd       []Provider
	ProvidersRemove    []Provider
	ProviderExternalID *ExternalID
}

// Empty reports whether the update changes nothing
func (u CredentialUpdate) Empty() bool {
	return u.PasswordHash == nil && !u.ClearPasswordHash &&
		u.EmailVerified == nil && !u.ClearEmailVerified &&
		len(u.ProvidersAdd) == 0 && len(u.ProvidersRemove) == 0 &&
		u.ProviderExternalID == nil
}
