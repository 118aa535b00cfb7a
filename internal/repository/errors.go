package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Common repository errors
var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateEmail is returned when trying to create an account with an existing email
	ErrDuplicateEmail = errors.New("account with this email already exists")

	// ErrDuplicateToken is returned when trying to store a token whose lookup hash is taken
	ErrDuplicateToken = errors.New("token with this hash already exists")

	// ErrDuplicateProviderID is returned when a provider external id is already linked to another account
	ErrDuplicateProviderID = errors.New("provider id is linked to another account")

	// ErrCredentialInvariant is returned when the store rejects a local provider without a password hash
	ErrCredentialInvariant = errors.New("local provider requires a password hash")
)

const (
	pqUniqueViolation = "23505"
	pqCheckViolation  = "23514"
)

// pqError unwraps a driver error, reporting its SQLSTATE class
func pqError(err error) (*pq.Error, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr, true
	}
	return nil, false
}
