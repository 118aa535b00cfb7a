package tokens

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/go-jose/go-jose/v4"
)

// LoadPrivateKey parses a PEM encoded RSA key in PKCS1 or PKCS8 form
func LoadPrivateKey(keyPEM []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, errors.New("failed to decode PEM block from signing key")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing key is %T, want RSA", parsed)
	}
	return key, nil
}

// LoadPrivateKeyFile reads and parses a PEM key file
func LoadPrivateKeyFile(path string) (*rsa.PrivateKey, error) {
	keyPEM, err := os.ReadFile(path) // #nosec G304 - path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	return LoadPrivateKey(keyPEM)
}

// KeyID computes the RFC 7638 JWK thumbprint of the public key
func KeyID(pub *rsa.PublicKey) (string, error) {
	jwk := jose.JSONWebKey{Key: pub}
	thumbprint, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute key thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(thumbprint), nil
}

// PublicJWKS returns the verification key as a JWK set, for processes that
// verify access tokens without holding the signing key
func (c *Codec) PublicJWKS() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       c.verifyKey,
			KeyID:     c.keyID,
			Algorithm: "RS256",
			Use:       "sig",
		}},
	}
}
