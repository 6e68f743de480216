package server

import (
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"defaults", Config{AccessTokenTTL: 3600, AuthorizationCodeTTL: 600}, false},
		{"minimums", Config{AccessTokenTTL: 60, AuthorizationCodeTTL: 60}, false},
		{"maximums", Config{AccessTokenTTL: 86400, AuthorizationCodeTTL: 1800}, false},
		{"token TTL too short", Config{AccessTokenTTL: 59, AuthorizationCodeTTL: 600}, true},
		{"token TTL too long", Config{AccessTokenTTL: 86401, AuthorizationCodeTTL: 600}, true},
		{"code TTL too short", Config{AccessTokenTTL: 3600, AuthorizationCodeTTL: 59}, true},
		{"code TTL too long", Config{AccessTokenTTL: 3600, AuthorizationCodeTTL: 1801}, true},
		{"bad port", Config{AccessTokenTTL: 3600, AuthorizationCodeTTL: 600, Port: 70000}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Lifetimes(t *testing.T) {
	c := applyDefaults(&Config{})

	if got := c.AccessTokenLifetime(); got != time.Hour {
		t.Errorf("AccessTokenLifetime() = %v, want 1h", got)
	}
	if got := c.AuthorizationCodeLifetime(); got != 10*time.Minute {
		t.Errorf("AuthorizationCodeLifetime() = %v, want 10m", got)
	}
}
