// Package tokens implements the cryptographic primitives of the session
// lifecycle: RS256 access tokens, opaque random tokens and the two hashes
// used to store them. Nothing in this package performs I/O.
package tokens

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prperemyshlev/auth-session-service/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// ErrNoSigningKey is returned when a verify-only codec is asked to sign
var ErrNoSigningKey = errors.New("codec has no signing key")

// Status is the outcome of access token verification
type Status int

const (
	// StatusInvalid covers malformed, tampered and foreign tokens
	StatusInvalid Status = iota
	// StatusValid means signature, expiry and required claims all check out
	StatusValid
	// StatusExpired means the token is authentic but stale; the caller should refresh
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusExpired:
		return "expired"
	default:
		return "invalid"
	}
}

// Identity is what an access token asserts about its bearer
type Identity struct {
	PublicID  string
	Role      domain.Role
	ExpiresAt time.Time
}

// Verification is the three-way result of VerifyAccessToken. Identity is
// only populated when Status is StatusValid.
type Verification struct {
	Status   Status
	Identity Identity
}

// AccessClaims are the JWT claims of an access token
type AccessClaims struct {
	PublicID string `json:"publicId"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Codec signs and verifies access tokens and hashes opaque tokens
type Codec struct {
	signKey     *rsa.PrivateKey
	verifyKey   *rsa.PublicKey
	keyID       string
	issuer      string
	storageCost int
	now         func() time.Time
}

type Option func(*Codec)

// WithClock replaces the wall clock used for issuing and checking expiry
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// WithIssuer sets the iss claim written to and required from tokens
func WithIssuer(issuer string) Option {
	return func(c *Codec) { c.issuer = issuer }
}

// WithStorageCost sets the bcrypt work factor of HashForStorage
func WithStorageCost(cost int) Option {
	return func(c *Codec) { c.storageCost = cost }
}

// NewCodec creates a codec that can both sign and verify
func NewCodec(key *rsa.PrivateKey, opts ...Option) (*Codec, error) {
	if key == nil {
		return nil, ErrNoSigningKey
	}
	c, err := newCodec(&key.PublicKey, opts)
	if err != nil {
		return nil, err
	}
	c.signKey = key
	return c, nil
}

// NewVerifier creates a codec holding only the public key. It verifies
// tokens but cannot mint them.
func NewVerifier(pub *rsa.PublicKey, opts ...Option) (*Codec, error) {
	return newCodec(pub, opts)
}

func newCodec(pub *rsa.PublicKey, opts []Option) (*Codec, error) {
	if pub == nil {
		return nil, errors.New("public key is required")
	}

	kid, err := KeyID(pub)
	if err != nil {
		return nil, err
	}

	c := &Codec{
		verifyKey:   pub,
		keyID:       kid,
		storageCost: bcrypt.DefaultCost,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// KeyID returns the kid written to token headers
func (c *Codec) KeyID() string {
	return c.keyID
}

// SignAccessToken mints an RS256 access token for the account
func (c *Codec) SignAccessToken(publicID string, role domain.Role, ttl time.Duration) (string, time.Time, error) {
	if c.signKey == nil {
		return "", time.Time{}, ErrNoSigningKey
	}
	if publicID == "" || !role.Valid() {
		return "", time.Time{}, fmt.Errorf("invalid subject %q with role %q", publicID, role)
	}

	now := c.now()
	expiresAt := now.Add(ttl)

	claims := AccessClaims{
		PublicID: publicID,
		Role:     string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = c.keyID

	signed, err := token.SignedString(c.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// VerifyAccessToken checks signature, expiry and required claims. The
// signature is checked before expiry, so a tampered token is never reported
// as expired.
func (c *Codec) VerifyAccessToken(tokenString string) Verification {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return c.verifyKey, nil
	}, opts...)

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return Verification{Status: StatusExpired}
	default:
		return Verification{Status: StatusInvalid}
	}

	role := domain.Role(claims.Role)
	if claims.PublicID == "" || !role.Valid() {
		return Verification{Status: StatusInvalid}
	}

	return Verification{
		Status: StatusValid,
		Identity: Identity{
			PublicID:  claims.PublicID,
			Role:      role,
			ExpiresAt: claims.ExpiresAt.Time,
		},
	}
}
