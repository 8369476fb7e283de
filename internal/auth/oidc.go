// Package auth verifies the OIDC bearer tokens that Google Pub/Sub attaches
// to push deliveries.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	googleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
	googleIssuer  = "https://accounts.google.com"

	jwksRefreshInterval = time.Hour
)

// Verification errors
var (
	ErrTokenInvalid    = errors.New("token invalid")
	ErrWrongPrincipal  = errors.New("token issued for a different service account")
	ErrUnknownKey      = errors.New("token signed with unknown key")
	ErrEmailUnverified = errors.New("token email not verified")
)

// Verifier checks Pub/Sub push OIDC tokens
type Verifier interface {
	Verify(ctx context.Context, rawToken string) error
}

// pubsubClaims are the claims a Pub/Sub push token carries beyond the
// registered set
type pubsubClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// oidcVerifier validates tokens against Google's JWKS and pins the service
// account email the subscription was configured with
type oidcVerifier struct {
	expectedEmail string
	audience      string
	jwksURL       string
	client        *http.Client

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewOIDCVerifier creates a verifier pinned to the given service account
// email. The audience check is skipped when audience is empty.
func NewOIDCVerifier(expectedEmail, audience string) Verifier {
	return &oidcVerifier{
		expectedEmail: strings.ToLower(strings.TrimSpace(expectedEmail)),
		audience:      audience,
		jwksURL:       googleJWKSURL,
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

// NewOIDCVerifierWithJWKSURL creates a verifier against a custom JWKS
// endpoint, for tests
func NewOIDCVerifierWithJWKSURL(expectedEmail, audience, jwksURL string) Verifier {
	v := NewOIDCVerifier(expectedEmail, audience).(*oidcVerifier)
	v.jwksURL = jwksURL
	return v
}

// Verify parses and validates a bearer token. Any failure here is
// non-retriable from the webhook's point of view; redelivering a request
// with a bad token will never succeed.
func (v *oidcVerifier) Verify(ctx context.Context, rawToken string) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(googleIssuer),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &pubsubClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		return v.keyFor(ctx, kid)
	}, opts...)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrTokenInvalid, err)
	}

	if !claims.EmailVerified {
		return ErrEmailUnverified
	}
	if v.expectedEmail != "" && !strings.EqualFold(claims.Email, v.expectedEmail) {
		return ErrWrongPrincipal
	}
	return nil
}

// keyFor returns the RSA public key for a key id, refreshing the JWKS cache
// when the id is unknown or the cache is stale
func (v *oidcVerifier) keyFor(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if key, ok := v.keys[kid]; ok && time.Since(v.fetchedAt) < jwksRefreshInterval {
		return key, nil
	}

	if err := v.refreshLocked(ctx); err != nil {
		return nil, err
	}
	if key, ok := v.keys[kid]; ok {
		return key, nil
	}
	return nil, ErrUnknownKey
}

// jwk is the subset of a JSON Web Key needed to build an RSA public key
type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (v *oidcVerifier) refreshLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create jwks request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("jwks fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks fetch returned status %d", resp.StatusCode)
	}

	var payload struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("failed to decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(payload.Keys))
	for _, k := range payload.Keys {
		if k.Kty != "RSA" {
			continue
		}
		key, err := rsaKeyFromJWK(k)
		if err != nil {
			continue
		}
		keys[k.Kid] = key
	}
	if len(keys) == 0 {
		return errors.New("jwks contained no usable keys")
	}

	v.keys = keys
	v.fetchedAt = time.Now()
	return nil
}

func rsaKeyFromJWK(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent: %w", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
