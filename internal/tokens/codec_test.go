package tokens

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prperemyshlev/auth-session-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
	})
	return testKey
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCodec(t *testing.T, clock *fakeClock) *Codec {
	t.Helper()
	c, err := NewCodec(signingKey(t), WithClock(clock.Now), WithIssuer("test-issuer"), WithStorageCost(4))
	require.NoError(t, err)
	return c
}

func TestAccessTokenRoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	codec := newTestCodec(t, clock)

	token, expiresAt, err := codec.SignAccessToken("pub-123", domain.RoleAdmin, 300*time.Second)
	require.NoError(t, err)
	assert.Equal(t, clock.t.Add(300*time.Second), expiresAt)

	clock.Advance(299 * time.Second)
	v := codec.VerifyAccessToken(token)
	require.Equal(t, StatusValid, v.Status)
	assert.Equal(t, "pub-123", v.Identity.PublicID)
	assert.Equal(t, domain.RoleAdmin, v.Identity.Role)

	clock.Advance(2 * time.Second)
	v = codec.VerifyAccessToken(token)
	assert.Equal(t, StatusExpired, v.Status)
	assert.Empty(t, v.Identity.PublicID)
}

func TestAccessTokenExpiryKeepsSubSecondClock(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 750_000_000, time.UTC)}
	codec := newTestCodec(t, clock)

	_, expiresAt, err := codec.SignAccessToken("pub-123", domain.RoleUser, 300*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, expiresAt.Sub(clock.t))
}

func TestAccessTokenCarriesKeyID(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	codec := newTestCodec(t, clock)

	token, _, err := codec.SignAccessToken("pub-1", domain.RoleUser, time.Minute)
	require.NoError(t, err)

	parsed, _, err := jwt.NewParser().ParseUnverified(token, &AccessClaims{})
	require.NoError(t, err)
	assert.Equal(t, codec.KeyID(), parsed.Header["kid"])
	assert.Equal(t, "RS256", parsed.Header["alg"])
}

func TestTamperedTokenIsInvalid(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	codec := newTestCodec(t, clock)

	token, _, err := codec.SignAccessToken("pub-123", domain.RoleUser, time.Minute)
	require.NoError(t, err)

	segments := strings.Split(token, ".")
	require.Len(t, segments, 3)

	offset := 0
	for i, seg := range segments {
		for _, pos := range []int{1, len(seg) / 2, len(seg) - 2} {
			idx := offset + pos
			tampered := []byte(token)
			if tampered[idx] == 'A' {
				tampered[idx] = 'B'
			} else {
				tampered[idx] = 'A'
			}
			v := codec.VerifyAccessToken(string(tampered))
			assert.Equalf(t, StatusInvalid, v.Status, "segment %d position %d", i, pos)
		}
		offset += len(seg) + 1
	}
}

func TestTamperedExpiredTokenIsInvalidNotExpired(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	codec := newTestCodec(t, clock)

	token, _, err := codec.SignAccessToken("pub-123", domain.RoleUser, time.Minute)
	require.NoError(t, err)
	clock.Advance(time.Hour)

	segments := strings.Split(token, ".")
	sig := []byte(segments[2])
	mid := len(sig) / 2
	if sig[mid] == 'A' {
		sig[mid] = 'B'
	} else {
		sig[mid] = 'A'
	}

	v := codec.VerifyAccessToken(segments[0] + "." + segments[1] + "." + string(sig))
	assert.Equal(t, StatusInvalid, v.Status)
}

func TestVerifyRejectsForeignAlgorithms(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	codec := newTestCodec(t, clock)

	claims := AccessClaims{
		PublicID: "pub-123",
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test-issuer",
			ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour)),
		},
	}

	hs, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(x509.MarshalPKCS1PublicKey(&signingKey(t).PublicKey))
	require.NoError(t, err)
	assert.Equal(t, StatusInvalid, codec.VerifyAccessToken(hs).Status)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	assert.Equal(t, StatusInvalid, codec.VerifyAccessToken(none).Status)
}

func TestVerifyRequiresClaims(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	codec := newTestCodec(t, clock)

	sign := func(claims AccessClaims) string {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		s, err := token.SignedString(signingKey(t))
		require.NoError(t, err)
		return s
	}

	exp := jwt.NewNumericDate(clock.t.Add(time.Hour))

	noSubject := sign(AccessClaims{Role: "user", RegisteredClaims: jwt.RegisteredClaims{Issuer: "test-issuer", ExpiresAt: exp}})
	assert.Equal(t, StatusInvalid, codec.VerifyAccessToken(noSubject).Status)

	badRole := sign(AccessClaims{PublicID: "p", Role: "root", RegisteredClaims: jwt.RegisteredClaims{Issuer: "test-issuer", ExpiresAt: exp}})
	assert.Equal(t, StatusInvalid, codec.VerifyAccessToken(badRole).Status)

	noExpiry := sign(AccessClaims{PublicID: "p", Role: "user", RegisteredClaims: jwt.RegisteredClaims{Issuer: "test-issuer"}})
	assert.Equal(t, StatusInvalid, codec.VerifyAccessToken(noExpiry).Status)

	otherIssuer := sign(AccessClaims{PublicID: "p", Role: "user", RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else", ExpiresAt: exp}})
	assert.Equal(t, StatusInvalid, codec.VerifyAccessToken(otherIssuer).Status)

	assert.Equal(t, StatusInvalid, codec.VerifyAccessToken("not-a-token").Status)
	assert.Equal(t, StatusInvalid, codec.VerifyAccessToken("").Status)
}

func TestVerifierCannotSign(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	signer := newTestCodec(t, clock)

	verifier, err := NewVerifier(&signingKey(t).PublicKey, WithClock(clock.Now), WithIssuer("test-issuer"))
	require.NoError(t, err)

	_, _, err = verifier.SignAccessToken("pub-1", domain.RoleUser, time.Minute)
	require.ErrorIs(t, err, ErrNoSigningKey)

	token, _, err := signer.SignAccessToken("pub-1", domain.RoleUser, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StatusValid, verifier.VerifyAccessToken(token).Status)
	assert.Equal(t, signer.KeyID(), verifier.KeyID())
}

func TestSignRejectsUnknownRole(t *testing.T) {
	codec := newTestCodec(t, &fakeClock{t: time.Now()})

	_, _, err := codec.SignAccessToken("pub-1", domain.Role("root"), time.Minute)
	assert.Error(t, err)
}

func TestLoadPrivateKey(t *testing.T) {
	key := signingKey(t)

	pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	loaded, err := LoadPrivateKey(pkcs1)
	require.NoError(t, err)
	assert.True(t, key.Equal(loaded))

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pkcs8 := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	loaded, err = LoadPrivateKey(pkcs8)
	require.NoError(t, err)
	assert.True(t, key.Equal(loaded))

	_, err = LoadPrivateKey([]byte("garbage"))
	assert.Error(t, err)
}

func TestPublicJWKS(t *testing.T) {
	codec := newTestCodec(t, &fakeClock{t: time.Now()})

	raw, err := json.Marshal(codec.PublicJWKS())
	require.NoError(t, err)

	var doc struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.Keys, 1)
	assert.Equal(t, "RSA", doc.Keys[0]["kty"])
	assert.Equal(t, codec.KeyID(), doc.Keys[0]["kid"])
	assert.NotContains(t, doc.Keys[0], "d", "private exponent must not be published")
}
