package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAuthorizationCodeNotFound is returned for unknown, expired or already
	// consumed authorization codes.
	ErrAuthorizationCodeNotFound = errors.New("authorization code not found")

	// ErrClientNotFound is returned when no client is registered under an ID.
	ErrClientNotFound = errors.New("client not found")

	// ErrInvalidRecord is returned when a caller passes an incomplete record.
	ErrInvalidRecord = errors.New("invalid record")
)

// CodeStore holds pending authorization codes.
// All methods accept context.Context for tracing and cancellation.
type CodeStore interface {
	// SaveAuthorizationCode stores a new code until its ExpiresAt.
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// GetAuthorizationCode returns the code, or ErrAuthorizationCodeNotFound if it
	// is absent or expired. Expired entries are treated as absent even when they
	// have not been swept yet.
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// DeleteAuthorizationCode consumes a code. It returns
	// ErrAuthorizationCodeNotFound when the code was already gone, which lets
	// callers detect that a concurrent exchange consumed it first.
	DeleteAuthorizationCode(ctx context.Context, code string) error
}

// TokenStore tracks issued access tokens and their revocation.
// All methods accept context.Context for tracing and cancellation.
type TokenStore interface {
	// SaveTokenRecord records an issued token until its ExpiresAt.
	SaveTokenRecord(ctx context.Context, record *TokenRecord) error

	// IsRevoked reports whether jti has been revoked.
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// RevokeToken marks jti revoked. Revocation is monotonic: the flag is only
	// dropped together with the token record when that record expires, or after
	// the store's revocation TTL when no record exists.
	RevokeToken(ctx context.Context, jti string) error
}

// ClientStore holds dynamically registered clients.
// All methods accept context.Context for tracing and cancellation.
type ClientStore interface {
	// SaveClient stores a client under its ClientID.
	SaveClient(ctx context.Context, client *Client) error

	// GetClient returns the client, or ErrClientNotFound.
	GetClient(ctx context.Context, clientID string) (*Client, error)
}

// AuthorizationCode is a single pending grant.
type AuthorizationCode struct {
	Code                string    `json:"code"`
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scope               string    `json:"scope"`
	CodeChallenge       string    `json:"code_challenge"`
	CodeChallengeMethod string    `json:"code_challenge_method"`
	Resource            string    `json:"resource"`
	State               string    `json:"state,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// TokenRecord is the bookkeeping kept for an issued access token. The token
// itself is self-contained and never stored.
type TokenRecord struct {
	JTI       string    `json:"jti"`
	Subject   string    `json:"sub"`
	ClientID  string    `json:"client_id"`
	Scopes    []string  `json:"scopes"`
	Resource  string    `json:"resource"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Client is a dynamically registered OAuth client.
type Client struct {
	ClientID                string    `json:"client_id"`
	ClientName              string    `json:"client_name"`
	RedirectURIs            []string  `json:"redirect_uris"`
	GrantTypes              []string  `json:"grant_types"`
	ResponseTypes           []string  `json:"response_types"`
	TokenEndpointAuthMethod string    `json:"token_endpoint_auth_method"`
	ClientIDIssuedAt        time.Time `json:"client_id_issued_at"`
}

// ValidateAuthorizationCode checks the fields every backend requires.
func ValidateAuthorizationCode(code *AuthorizationCode) error {
	switch {
	case code == nil:
		return errors.Join(ErrInvalidRecord, errors.New("authorization code cannot be nil"))
	case code.Code == "":
		return errors.Join(ErrInvalidRecord, errors.New("code cannot be empty"))
	case code.ExpiresAt.IsZero():
		return errors.Join(ErrInvalidRecord, errors.New("code expiry must be set"))
	}
	return nil
}

// ValidateTokenRecord checks the fields every backend requires.
func ValidateTokenRecord(record *TokenRecord) error {
	switch {
	case record == nil:
		return errors.Join(ErrInvalidRecord, errors.New("token record cannot be nil"))
	case record.JTI == "":
		return errors.Join(ErrInvalidRecord, errors.New("jti cannot be empty"))
	case record.ExpiresAt.IsZero():
		return errors.Join(ErrInvalidRecord, errors.New("token expiry must be set"))
	}
	return nil
}

// ValidateClient checks the fields every backend requires.
func ValidateClient(client *Client) error {
	switch {
	case client == nil:
		return errors.Join(ErrInvalidRecord, errors.New("client cannot be nil"))
	case client.ClientID == "":
		return errors.Join(ErrInvalidRecord, errors.New("client ID cannot be empty"))
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (c *Client) Clone() *Client {
	if c == nil {
		return nil
	}
	out := *c
	out.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	out.GrantTypes = append([]string(nil), c.GrantTypes...)
	out.ResponseTypes = append([]string(nil), c.ResponseTypes...)
	return &out
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (r *TokenRecord) Clone() *TokenRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Scopes = append([]string(nil), r.Scopes...)
	return &out
}
