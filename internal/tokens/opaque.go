package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// opaqueTokenBytes gives 256 bits of entropy. Hex encoded that is 64
// characters, inside bcrypt's 72 byte input limit.
const opaqueTokenBytes = 32

// NewOpaqueToken returns a random token for refresh, verification and reset use
func NewOpaqueToken() (string, error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashForStorage returns the slow salted hash that gates acceptance of an
// opaque token
func (c *Codec) HashForStorage(value string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(value), c.storageCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash token: %w", err)
	}
	return string(hash), nil
}

// CompareStorageHash reports whether value matches a HashForStorage result
func CompareStorageHash(hash, value string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(value)) == nil
}

// LookupHash returns the indexable digest of an opaque token. No salt: the
// input is already high-entropy.
func LookupHash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
