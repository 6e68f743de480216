package storage

import (
	"errors"
	"testing"
	"time"
)

func TestValidateAuthorizationCode(t *testing.T) {
	tests := []struct {
		name    string
		code    *AuthorizationCode
		wantErr bool
	}{
		{"nil", nil, true},
		{"empty code", &AuthorizationCode{ExpiresAt: time.Now()}, true},
		{"no expiry", &AuthorizationCode{Code: "abc"}, true},
		{"valid", &AuthorizationCode{Code: "abc", ExpiresAt: time.Now()}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAuthorizationCode(tt.code)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateAuthorizationCode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("error %v should wrap ErrInvalidRecord", err)
			}
		})
	}
}

func TestValidateTokenRecord(t *testing.T) {
	if err := ValidateTokenRecord(&TokenRecord{JTI: "j", ExpiresAt: time.Now()}); err != nil {
		t.Errorf("valid record rejected: %v", err)
	}
	if err := ValidateTokenRecord(&TokenRecord{ExpiresAt: time.Now()}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("missing jti error = %v", err)
	}
	if err := ValidateTokenRecord(&TokenRecord{JTI: "j"}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("missing expiry error = %v", err)
	}
}

func TestValidateClient(t *testing.T) {
	if err := ValidateClient(&Client{ClientID: "c"}); err != nil {
		t.Errorf("valid client rejected: %v", err)
	}
	if err := ValidateClient(&Client{}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("empty client ID error = %v", err)
	}
	if err := ValidateClient(nil); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("nil client error = %v", err)
	}
}

func TestClone(t *testing.T) {
	c := &Client{ClientID: "c", RedirectURIs: []string{"https://a/cb"}}
	cp := c.Clone()
	cp.RedirectURIs[0] = "https://evil/cb"
	if c.RedirectURIs[0] != "https://a/cb" {
		t.Error("Client.Clone shares the redirect URI slice")
	}

	r := &TokenRecord{JTI: "j", Scopes: []string{"mcp:tools:*"}}
	rc := r.Clone()
	rc.Scopes[0] = "x"
	if r.Scopes[0] != "mcp:tools:*" {
		t.Error("TokenRecord.Clone shares the scopes slice")
	}

	if (*Client)(nil).Clone() != nil || (*TokenRecord)(nil).Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}
