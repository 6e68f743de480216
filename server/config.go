package server

import (
	"fmt"
	"time"

	"github.com/midodimori/mcp-test-kits/scope"
)

// Limits for the configurable lifetimes, in seconds.
const (
	MinAccessTokenTTL       = 60
	MaxAccessTokenTTL       = 86400
	MinAuthorizationCodeTTL = 60
	MaxAuthorizationCodeTTL = 1800

	// TokenSubject is the fixed subject of every issued token. There is no
	// user authentication behind the consent step.
	TokenSubject = "test-user"
)

// Config holds OAuth server configuration
type Config struct {
	// Issuer is the server's issuer identifier (base URL).
	// Empty derives it per request, see ResolveIssuer.
	Issuer string

	// Host and Port are the listen address used to derive the issuer when
	// Issuer is empty. Port 0 falls back to the request Host.
	Host string
	Port int

	// AutoApprove skips the consent step and issues a code immediately.
	AutoApprove bool

	// AccessTokenTTL is how long access tokens are valid
	AccessTokenTTL int64 // seconds, default: 3600 (1 hour)

	// AuthorizationCodeTTL is how long authorization codes are valid
	AuthorizationCodeTTL int64 // seconds, default: 600 (10 minutes)

	// TrustProxy enables trusting X-Forwarded-Proto and X-Forwarded-For.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool // default: false

	// SupportedScopes is advertised in discovery metadata.
	// Default: scope.Supported()
	SupportedScopes []string
}

// applyDefaults fills zero values with their defaults.
func applyDefaults(config *Config) *Config {
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = 3600 // 1 hour
	}
	if config.AuthorizationCodeTTL == 0 {
		config.AuthorizationCodeTTL = 600 // 10 minutes
	}
	if len(config.SupportedScopes) == 0 {
		config.SupportedScopes = scope.Supported()
	}
	return config
}

// Validate checks the lifetime ranges.
func (c *Config) Validate() error {
	if c.AccessTokenTTL < MinAccessTokenTTL || c.AccessTokenTTL > MaxAccessTokenTTL {
		return fmt.Errorf("access token TTL must be between %d and %d seconds, got %d",
			MinAccessTokenTTL, MaxAccessTokenTTL, c.AccessTokenTTL)
	}
	if c.AuthorizationCodeTTL < MinAuthorizationCodeTTL || c.AuthorizationCodeTTL > MaxAuthorizationCodeTTL {
		return fmt.Errorf("authorization code TTL must be between %d and %d seconds, got %d",
			MinAuthorizationCodeTTL, MaxAuthorizationCodeTTL, c.AuthorizationCodeTTL)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", c.Port)
	}
	return nil
}

// AccessTokenLifetime returns AccessTokenTTL as a duration.
func (c *Config) AccessTokenLifetime() time.Duration {
	return time.Duration(c.AccessTokenTTL) * time.Second
}

// AuthorizationCodeLifetime returns AuthorizationCodeTTL as a duration.
func (c *Config) AuthorizationCodeLifetime() time.Duration {
	return time.Duration(c.AuthorizationCodeTTL) * time.Second
}
