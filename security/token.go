package security

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/midodimori/mcp-test-kits/internal/util"
)

const (
	// SigningKeySize is the size in bytes of the derived HMAC key.
	SigningKeySize = 32

	// signingKeyInfo binds derived keys to their purpose so the same secret
	// cannot be reused for a different construction by accident.
	signingKeyInfo = "mcp-test-kits access token HS256"
)

var (
	// ErrInvalidToken is returned for every verification failure. The
	// underlying cause is wrapped for logging but must not reach clients.
	ErrInvalidToken = errors.New("invalid token")

	// ErrSigningSecretRequired is returned when a codec is built without a secret.
	ErrSigningSecretRequired = errors.New("signing secret is required")
)

// Claims is the signed access token payload.
type Claims struct {
	Scope    string `json:"scope"`
	Resource string `json:"resource"`
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies HS256 access tokens.
type TokenCodec struct {
	key []byte
	now func() time.Time
}

// TokenCodecOption configures a TokenCodec.
type TokenCodecOption func(*TokenCodec)

// WithTokenClock overrides the codec's time source.
func WithTokenClock(now func() time.Time) TokenCodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// DeriveSigningKey expands an operator supplied secret into a fixed-size HMAC key
// using HKDF-SHA256.
func DeriveSigningKey(secret []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrSigningSecretRequired
	}
	key := make([]byte, SigningKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(signingKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive signing key: %w", err)
	}
	return key, nil
}

// NewTokenCodec creates a codec keyed from secret.
func NewTokenCodec(secret []byte, opts ...TokenCodecOption) (*TokenCodec, error) {
	key, err := DeriveSigningKey(secret)
	if err != nil {
		return nil, err
	}
	c := &TokenCodec{key: key, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue mints a signed token for subject. The audience is the resource, and a
// fresh random jti is assigned on every call.
func (c *TokenCodec) Issue(subject, scope, resource, issuer string, ttl time.Duration) (string, *Claims, error) {
	now := c.now()
	claims := &Claims{
		Scope:    scope,
		Resource: resource,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{resource},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify checks signature, expiry, audience and issuer. Audience may be the
// issuer with or without a trailing slash (RFC 8707).
func (c *TokenCodec) Verify(token, expectedIssuer string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(expectedIssuer),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	// WithIssuer tolerates an empty expected issuer, exact match must still hold.
	if claims.Issuer != expectedIssuer {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
	}
	if !audienceMatches(claims.Audience, expectedIssuer) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrInvalidToken)
	}
	return claims, nil
}

// Decode parses a token without verifying it. It is only suitable for
// best-effort lookups such as revocation.
func (c *TokenCodec) Decode(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

func audienceMatches(aud jwt.ClaimStrings, issuer string) bool {
	want := util.NormalizeURL(issuer)
	for _, a := range aud {
		if a == issuer || a == want || a == want+"/" {
			return true
		}
	}
	return false
}

// ScopeList returns the token's scopes as a slice.
func (c *Claims) ScopeList() []string {
	return strings.Fields(c.Scope)
}
