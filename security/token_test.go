package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer   = "http://localhost:3000"
	testResource = "http://localhost:3000"
)

func newTestCodec(t *testing.T, now *time.Time) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec([]byte("test-signing-secret"), WithTokenClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("NewTokenCodec() error = %v", err)
	}
	return codec
}

func TestNewTokenCodec_RequiresSecret(t *testing.T) {
	if _, err := NewTokenCodec(nil); !errors.Is(err, ErrSigningSecretRequired) {
		t.Errorf("NewTokenCodec(nil) error = %v, want ErrSigningSecretRequired", err)
	}
}

func TestDeriveSigningKey(t *testing.T) {
	k1, err := DeriveSigningKey([]byte("secret-a"))
	if err != nil {
		t.Fatalf("DeriveSigningKey() error = %v", err)
	}
	k2, _ := DeriveSigningKey([]byte("secret-a"))
	k3, _ := DeriveSigningKey([]byte("secret-b"))

	if len(k1) != SigningKeySize {
		t.Errorf("key length = %d, want %d", len(k1), SigningKeySize)
	}
	if string(k1) != string(k2) {
		t.Error("derivation should be deterministic")
	}
	if string(k1) == string(k3) {
		t.Error("different secrets should yield different keys")
	}
}

func TestTokenCodec_RoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, &now)

	token, issued, err := codec.Issue("test-user", "mcp:tools:echo", testResource, testIssuer, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("token is not a compact JWS: %q", token)
	}

	claims, err := codec.Verify(token, testIssuer)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject != "test-user" {
		t.Errorf("Subject = %q, want test-user", claims.Subject)
	}
	if claims.Scope != "mcp:tools:echo" {
		t.Errorf("Scope = %q", claims.Scope)
	}
	if claims.Resource != testResource {
		t.Errorf("Resource = %q", claims.Resource)
	}
	if claims.ID == "" || claims.ID != issued.ID {
		t.Errorf("jti = %q, issued jti = %q", claims.ID, issued.ID)
	}
	if !claims.ExpiresAt.Time.Equal(now.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt.Time, now.Add(time.Hour))
	}
}

func TestTokenCodec_UniqueJTI(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, &now)

	_, a, _ := codec.Issue("test-user", "s", testResource, testIssuer, time.Hour)
	_, b, _ := codec.Issue("test-user", "s", testResource, testIssuer, time.Hour)
	if a.ID == b.ID {
		t.Errorf("two issuances share jti %q", a.ID)
	}
}

func TestTokenCodec_VerifyFailures(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, &now)

	other, err := NewTokenCodec([]byte("another-secret"), WithTokenClock(func() time.Time { return now }))
	if err != nil {
		t.Fatal(err)
	}

	valid, _, _ := codec.Issue("test-user", "s", testResource, testIssuer, time.Minute)
	foreign, _, _ := other.Issue("test-user", "s", testResource, testIssuer, time.Minute)
	wrongAudience, _, _ := codec.Issue("test-user", "s", "https://elsewhere", testIssuer, time.Minute)
	wrongIssuer, _, _ := codec.Issue("test-user", "s", testResource, "http://evil", time.Minute)

	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testResource},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			ID:        "x",
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name    string
		token   string
		issuer  string
		advance time.Duration
	}{
		{name: "bad signature", token: foreign, issuer: testIssuer},
		{name: "tampered", token: valid[:len(valid)-2] + "xx", issuer: testIssuer},
		{name: "audience mismatch", token: wrongAudience, issuer: testIssuer},
		{name: "issuer mismatch", token: wrongIssuer, issuer: testIssuer},
		{name: "expected issuer differs", token: valid, issuer: "http://localhost:4000"},
		{name: "none algorithm", token: noneAlg, issuer: testIssuer},
		{name: "malformed", token: "not-a-jwt", issuer: testIssuer},
		{name: "empty", token: "", issuer: testIssuer},
		{name: "expired", token: valid, issuer: testIssuer, advance: 2 * time.Minute},
		{name: "expires exactly now", token: valid, issuer: testIssuer, advance: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saved := now
			now = now.Add(tt.advance)
			defer func() { now = saved }()

			_, err := codec.Verify(tt.token, tt.issuer)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestTokenCodec_AudienceTrailingSlash(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, &now)

	tests := []struct {
		name     string
		resource string
		issuer   string
	}{
		{"audience has slash", "http://localhost:3000/", "http://localhost:3000"},
		{"issuer has slash", "http://localhost:3000", "http://localhost:3000/"},
		{"both equal", "http://localhost:3000", "http://localhost:3000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, _, err := codec.Issue("test-user", "s", tt.resource, tt.issuer, time.Hour)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := codec.Verify(token, tt.issuer); err != nil {
				t.Errorf("Verify() error = %v", err)
			}
		})
	}
}

func TestTokenCodec_Decode(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, &now)
	other, _ := NewTokenCodec([]byte("another-secret"))

	token, issued, _ := other.Issue("test-user", "s", testResource, testIssuer, time.Hour)

	claims, err := codec.Decode(token)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if claims.ID != issued.ID {
		t.Errorf("Decode() jti = %q, want %q", claims.ID, issued.ID)
	}

	if _, err := codec.Decode("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Decode(garbage) error = %v, want ErrInvalidToken", err)
	}
}

func TestClaims_ScopeList(t *testing.T) {
	c := &Claims{Scope: "mcp:tools:echo mcp:prompts:*"}
	got := c.ScopeList()
	if len(got) != 2 || got[0] != "mcp:tools:echo" || got[1] != "mcp:prompts:*" {
		t.Errorf("ScopeList() = %v", got)
	}
}
