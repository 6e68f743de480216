package testutil

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/midodimori/mcp-test-kits/storage"
)

const (
	// TestClientID is the client ID used by the fixtures.
	TestClientID = "test-client-id"

	// TestRedirectURI is the redirect URI used by the fixtures.
	TestRedirectURI = "https://client.example.com/callback"

	// TestResource is the resource and issuer used by the fixtures.
	TestResource = "http://localhost:3000"

	// TestScope is the scope used by the fixtures.
	TestScope = "mcp:tools:echo"
)

// MockTime is a controllable, goroutine-safe time source.
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// GeneratePKCEPair returns an S256 (challenge, verifier) pair.
func GeneratePKCEPair() (challenge, verifier string) {
	verifier = oauth2.GenerateVerifier()
	return oauth2.S256ChallengeFromVerifier(verifier), verifier
}

// GenerateTestAuthorizationCode returns a code created at now and valid for ttl.
func GenerateTestAuthorizationCode(now time.Time, ttl time.Duration) *storage.AuthorizationCode {
	challenge, _ := GeneratePKCEPair()
	return &storage.AuthorizationCode{
		Code:                oauth2.GenerateVerifier(),
		ClientID:            TestClientID,
		RedirectURI:         TestRedirectURI,
		Scope:               TestScope,
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
		Resource:            TestResource,
		State:               "test-state",
		CreatedAt:           now,
		ExpiresAt:           now.Add(ttl),
	}
}

// GenerateTestTokenRecord returns a record for jti issued at now and valid for ttl.
func GenerateTestTokenRecord(jti string, now time.Time, ttl time.Duration) *storage.TokenRecord {
	return &storage.TokenRecord{
		JTI:       jti,
		Subject:   "test-user",
		ClientID:  TestClientID,
		Scopes:    []string{TestScope},
		Resource:  TestResource,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// GenerateTestClient returns a public client registered at now.
func GenerateTestClient(clientID string, now time.Time) *storage.Client {
	return &storage.Client{
		ClientID:                clientID,
		ClientName:              "Test Client",
		RedirectURIs:            []string{TestRedirectURI},
		GrantTypes:              []string{"authorization_code"},
		ResponseTypes:           []string{"code"},
		TokenEndpointAuthMethod: "none",
		ClientIDIssuedAt:        now,
	}
}
