package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// signingKey is generated once; 1024 bits keeps the test fast
var signingKey *rsa.PrivateKey

func init() {
	var err error
	signingKey, err = rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		panic(err)
	}
}

func jwksServer(t *testing.T, kid string, key *rsa.PublicKey) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]interface{}{
			"keys": []map[string]string{{
				"kid": kid,
				"kty": "RSA",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		}
		require.NoError(t, json.NewEncoder(w).Encode(payload))
	}))
	t.Cleanup(server.Close)
	return server
}

func signToken(t *testing.T, kid string, claims tokenClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(signingKey)
	require.NoError(t, err)
	return signed
}

func validClaims(email string) tokenClaims {
	return tokenClaims{
		Email:         email,
		EmailVerified: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://accounts.google.com",
			Audience:  jwt.ClaimStrings{"https://helpdesk.example/webhooks/gmail"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestVerify_ValidToken(t *testing.T) {
	server := jwksServer(t, "key-1", &signingKey.PublicKey)
	verifier := NewOIDCVerifierWithJWKSURL("pubsub@project.iam.gserviceaccount.com", "", server.URL)

	token := signToken(t, "key-1", validClaims("pubsub@project.iam.gserviceaccount.com"))
	assert.NoError(t, verifier.Verify(context.Background(), token))
}

func TestVerify_AudiencePinned(t *testing.T) {
	server := jwksServer(t, "key-1", &signingKey.PublicKey)
	verifier := NewOIDCVerifierWithJWKSURL(
		"pubsub@project.iam.gserviceaccount.com",
		"https://helpdesk.example/webhooks/gmail",
		server.URL,
	)

	token := signToken(t, "key-1", validClaims("pubsub@project.iam.gserviceaccount.com"))
	assert.NoError(t, verifier.Verify(context.Background(), token))

	claims := validClaims("pubsub@project.iam.gserviceaccount.com")
	claims.Audience = jwt.ClaimStrings{"https://other.example"}
	wrongAudience := signToken(t, "key-1", claims)
	assert.ErrorIs(t, verifier.Verify(context.Background(), wrongAudience), ErrTokenInvalid)
}

func TestVerify_WrongPrincipal(t *testing.T) {
	server := jwksServer(t, "key-1", &signingKey.PublicKey)
	verifier := NewOIDCVerifierWithJWKSURL("pubsub@project.iam.gserviceaccount.com", "", server.URL)

	token := signToken(t, "key-1", validClaims("attacker@evil.example"))
	assert.ErrorIs(t, verifier.Verify(context.Background(), token), ErrWrongPrincipal)
}

func TestVerify_UnverifiedEmail(t *testing.T) {
	server := jwksServer(t, "key-1", &signingKey.PublicKey)
	verifier := NewOIDCVerifierWithJWKSURL("pubsub@project.iam.gserviceaccount.com", "", server.URL)

	claims := validClaims("pubsub@project.iam.gserviceaccount.com")
	claims.EmailVerified = false
	token := signToken(t, "key-1", claims)
	assert.ErrorIs(t, verifier.Verify(context.Background(), token), ErrEmailUnverified)
}

func TestVerify_BadSignature(t *testing.T) {
	otherKey, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)

	// JWKS serves a different key than the one that signed the token
	server := jwksServer(t, "key-1", &otherKey.PublicKey)
	verifier := NewOIDCVerifierWithJWKSURL("pubsub@project.iam.gserviceaccount.com", "", server.URL)

	token := signToken(t, "key-1", validClaims("pubsub@project.iam.gserviceaccount.com"))
	assert.ErrorIs(t, verifier.Verify(context.Background(), token), ErrTokenInvalid)
}

func TestVerify_UnknownKeyID(t *testing.T) {
	server := jwksServer(t, "key-1", &signingKey.PublicKey)
	verifier := NewOIDCVerifierWithJWKSURL("pubsub@project.iam.gserviceaccount.com", "", server.URL)

	token := signToken(t, "key-2", validClaims("pubsub@project.iam.gserviceaccount.com"))
	assert.ErrorIs(t, verifier.Verify(context.Background(), token), ErrTokenInvalid)
}

func TestVerify_ExpiredToken(t *testing.T) {
	server := jwksServer(t, "key-1", &signingKey.PublicKey)
	verifier := NewOIDCVerifierWithJWKSURL("pubsub@project.iam.gserviceaccount.com", "", server.URL)

	claims := validClaims("pubsub@project.iam.gserviceaccount.com")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	token := signToken(t, "key-1", claims)
	assert.ErrorIs(t, verifier.Verify(context.Background(), token), ErrTokenInvalid)
}

func TestVerify_WrongIssuer(t *testing.T) {
	server := jwksServer(t, "key-1", &signingKey.PublicKey)
	verifier := NewOIDCVerifierWithJWKSURL("pubsub@project.iam.gserviceaccount.com", "", server.URL)

	claims := validClaims("pubsub@project.iam.gserviceaccount.com")
	claims.Issuer = "https://issuer.evil.example"
	token := signToken(t, "key-1", claims)
	assert.ErrorIs(t, verifier.Verify(context.Background(), token), ErrTokenInvalid)
}

func TestVerify_Garbage(t *testing.T) {
	server := jwksServer(t, "key-1", &signingKey.PublicKey)
	verifier := NewOIDCVerifierWithJWKSURL("pubsub@project.iam.gserviceaccount.com", "", server.URL)

	assert.ErrorIs(t, verifier.Verify(context.Background(), "not-a-jwt"), ErrTokenInvalid)
}
