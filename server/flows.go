package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"

	"github.com/midodimori/mcp-test-kits/instrumentation"
	"github.com/midodimori/mcp-test-kits/internal/util"
	"github.com/midodimori/mcp-test-kits/scope"
	"github.com/midodimori/mcp-test-kits/security"
	"github.com/midodimori/mcp-test-kits/storage"
)

// GrantTypeAuthorizationCode is the only supported grant type.
const GrantTypeAuthorizationCode = "authorization_code"

// ErrTokenRevoked is returned by ValidateToken for a valid token whose jti
// has been revoked.
var ErrTokenRevoked = errors.New("token revoked")

// TokenRequest holds the form parameters of /oauth/token.
type TokenRequest struct {
	GrantType    string
	Code         string
	ClientID     string
	RedirectURI  string
	CodeVerifier string
}

// TokenResult is a successful exchange.
type TokenResult struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64
	Scope       string
	Claims      *security.Claims
}

// ApproveAuthorization issues a single-use code for a validated request and
// returns the redirect carrying it. The request is validated again so a
// tampered consent form cannot mint a code.
func (s *Server) ApproveAuthorization(ctx context.Context, req *AuthorizationRequest) (string, error) {
	ctx, span := s.startSpan(ctx, "oauth.server.approve_authorization")
	defer span.End()

	if oauthErr := req.Validate(); oauthErr != nil {
		instrumentation.AddOAuthErrorAttributes(span, oauthErr.Code, oauthErr.Description)
		return "", oauthErr
	}
	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, req.Scope, req.Resource)

	// 32 random bytes, base64url without padding.
	code := oauth2.GenerateVerifier()
	now := s.now()

	authCode := &storage.AuthorizationCode{
		Code:                code,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		Resource:            req.Resource,
		State:               req.State,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.Config.AuthorizationCodeLifetime()),
	}
	if err := s.codeStore.SaveAuthorizationCode(ctx, authCode); err != nil {
		instrumentation.RecordError(span, err)
		s.Logger.Error("Failed to save authorization code", "client_id", req.ClientID, "error", err)
		return "", errServer("Failed to issue authorization code")
	}

	if m := s.metrics(); m != nil {
		m.RecordAuthorizationDecision(ctx, req.ClientID, true)
	}
	instrumentation.SetSpanSuccess(span)

	s.Logger.Info("Issued authorization code",
		"client_id", req.ClientID,
		"scope", req.Scope,
		"code_prefix", util.SafeTruncate(code, tokenIDLogLength))

	params := url.Values{}
	params.Set("code", code)
	if req.State != "" {
		params.Set("state", req.State)
	}
	return AuthorizationRedirect(req.RedirectURI, params), nil
}

// DenyAuthorization returns the access_denied redirect for req.
func (s *Server) DenyAuthorization(ctx context.Context, req *AuthorizationRequest) string {
	if m := s.metrics(); m != nil {
		m.RecordAuthorizationDecision(ctx, req.ClientID, false)
	}
	s.Logger.Info("Authorization denied", "client_id", req.ClientID)

	return ErrorRedirect(req.RedirectURI, req.State,
		newError(ErrorCodeAccessDenied, "User denied consent", http.StatusFound))
}

// ExchangeAuthorizationCode redeems a code for an access token.
// The checks run in a fixed order: grant type, code presence and lookup,
// client, redirect URI, verifier presence, PKCE. The code is then deleted
// before a token is minted, so it cannot be replayed even if a later step
// fails. Protocol failures are returned as *Error.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, req *TokenRequest, issuer string) (*TokenResult, error) {
	ctx, span := s.startSpan(ctx, "oauth.server.exchange_code")
	defer span.End()

	result, oauthErr := s.exchangeAuthorizationCode(ctx, req, issuer)
	if oauthErr != nil {
		instrumentation.AddOAuthErrorAttributes(span, oauthErr.Code, oauthErr.Description)
		instrumentation.SetSpanError(span, oauthErr.Error())
		if m := s.metrics(); m != nil {
			m.RecordCodeExchangeFailed(ctx, oauthErr.Code)
		}
		return nil, oauthErr
	}

	instrumentation.SetSpanSuccess(span)
	if m := s.metrics(); m != nil {
		m.RecordCodeExchange(ctx, req.ClientID, security.PKCEMethodS256)
	}
	return result, nil
}

func (s *Server) exchangeAuthorizationCode(ctx context.Context, req *TokenRequest, issuer string) (*TokenResult, *Error) {
	// Grant type and code presence
	if req.GrantType != GrantTypeAuthorizationCode {
		return nil, newError(ErrorCodeUnsupportedGrantType, "", http.StatusBadRequest)
	}
	if req.Code == "" {
		return nil, errInvalidRequest("Missing code parameter")
	}

	// Lookup; absent and expired codes look the same
	authCode, err := s.codeStore.GetAuthorizationCode(ctx, req.Code)
	if err != nil {
		if !errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
			s.Logger.Error("Failed to load authorization code", "error", err)
			return nil, errServer("")
		}
		s.Logger.Debug("Authorization code validation failed",
			"reason", "not_found_or_expired",
			"client_id", req.ClientID,
			"code_prefix", util.SafeTruncate(req.Code, tokenIDLogLength))
		return nil, errInvalidGrant("Invalid or expired authorization code")
	}

	// Client
	if authCode.ClientID != req.ClientID {
		s.Logger.Debug("Authorization code validation failed",
			"reason", "client_id_mismatch",
			"expected_client_id", authCode.ClientID,
			"provided_client_id", req.ClientID)
		return nil, newError(ErrorCodeInvalidClient, "", http.StatusBadRequest)
	}

	// Redirect URI, then verifier presence
	if authCode.RedirectURI != req.RedirectURI {
		s.Logger.Debug("Authorization code validation failed",
			"reason", "redirect_uri_mismatch",
			"client_id", req.ClientID)
		return nil, errInvalidGrant("Redirect URI mismatch")
	}
	if req.CodeVerifier == "" {
		return nil, errInvalidRequest("Missing code_verifier")
	}

	// PKCE
	if !security.VerifyPKCE(req.CodeVerifier, authCode.CodeChallenge) {
		if m := s.metrics(); m != nil {
			m.RecordPKCEValidationFailed(ctx, authCode.CodeChallengeMethod)
		}
		s.Logger.Warn("PKCE validation failed", "client_id", req.ClientID)
		return nil, errInvalidGrant("Invalid code_verifier")
	}

	// Consume. Losing the delete means a concurrent exchange won.
	if err := s.codeStore.DeleteAuthorizationCode(ctx, req.Code); err != nil {
		if errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
			if m := s.metrics(); m != nil {
				m.RecordCodeReplayDetected(ctx)
			}
			s.Logger.Warn("Authorization code replay detected",
				"client_id", req.ClientID,
				"code_prefix", util.SafeTruncate(req.Code, tokenIDLogLength))
			return nil, errInvalidGrant("Invalid or expired authorization code")
		}
		s.Logger.Error("Failed to delete authorization code", "error", err)
		return nil, errServer("")
	}

	// Mint
	ttl := s.Config.AccessTokenLifetime()
	accessToken, claims, err := s.codec.Issue(TokenSubject, authCode.Scope, authCode.Resource, issuer, ttl)
	if err != nil {
		s.Logger.Error("Failed to issue access token", "error", err)
		return nil, errServer("")
	}

	// Record. Revocation does not depend on the record, so a failure here
	// is logged rather than failing an exchange whose code is already spent.
	record := &storage.TokenRecord{
		JTI:       claims.ID,
		Subject:   claims.Subject,
		ClientID:  authCode.ClientID,
		Scopes:    scope.Parse(authCode.Scope),
		Resource:  authCode.Resource,
		CreatedAt: claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := s.tokenStore.SaveTokenRecord(ctx, record); err != nil {
		s.Logger.Warn("Failed to save token record", "error", err)
	}

	s.Logger.Info("Issued access token",
		"client_id", authCode.ClientID,
		"scope", authCode.Scope,
		"jti_prefix", util.SafeTruncate(claims.ID, tokenIDLogLength))

	return &TokenResult{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   s.Config.AccessTokenTTL,
		Scope:       authCode.Scope,
		Claims:      claims,
	}, nil
}

// RevokeToken revokes the jti of token. The token is decoded without
// verification and undecodable input is ignored, so callers cannot learn
// whether a token was valid (RFC 7009). Only store failures are returned.
func (s *Server) RevokeToken(ctx context.Context, token string) error {
	ctx, span := s.startSpan(ctx, "oauth.server.revoke_token")
	defer span.End()

	if token == "" {
		return nil
	}

	claims, err := s.codec.Decode(token)
	if err != nil || claims.ID == "" {
		if m := s.metrics(); m != nil {
			m.RecordTokenRevocation(ctx, false)
		}
		s.Logger.Debug("Ignoring revocation of undecodable token")
		return nil
	}

	if err := s.tokenStore.RevokeToken(ctx, claims.ID); err != nil {
		instrumentation.RecordError(span, err)
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	if m := s.metrics(); m != nil {
		m.RecordTokenRevocation(ctx, true)
	}
	instrumentation.SetSpanSuccess(span)
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrTokenID, claims.ID))
	s.Logger.Info("Revoked access token", "jti_prefix", util.SafeTruncate(claims.ID, tokenIDLogLength))
	return nil
}

// ValidateToken verifies token against issuer and then applies the
// revocation veto. Verification failures wrap security.ErrInvalidToken and a
// revoked token yields ErrTokenRevoked.
func (s *Server) ValidateToken(ctx context.Context, token, issuer string) (*security.Claims, error) {
	claims, err := s.codec.Verify(token, issuer)
	if err != nil {
		s.Logger.Debug("Token verification failed", "error", err)
		return nil, err
	}

	revoked, err := s.tokenStore.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check revocation: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}
