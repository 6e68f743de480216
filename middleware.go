package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/midodimori/mcp-test-kits/instrumentation"
	"github.com/midodimori/mcp-test-kits/scope"
	"github.com/midodimori/mcp-test-kits/security"
	"github.com/midodimori/mcp-test-kits/server"
)

// Token validation results reported to RecordTokenValidation.
const (
	validationResultValid   = "valid"
	validationResultMissing = "missing"
	validationResultInvalid = "invalid"
	validationResultRevoked = "revoked"
	validationResultError   = "error"
)

const (
	unauthorizedMessage = "Valid Bearer token required"

	descriptionInvalidToken = "Invalid token"
	descriptionTokenRevoked = "Token revoked"
)

type contextKey string

const claimsKey contextKey = "token_claims"

// ClaimsFromContext returns the verified token claims attached by ValidateToken.
func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*security.Claims)
	return claims, ok && claims != nil
}

// ContextWithClaims attaches claims to ctx. Outside of ValidateToken it is
// meant for tests and for carrying claims across a transport boundary.
func ContextWithClaims(ctx context.Context, claims *security.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// HasScope reports whether the claims in ctx grant required.
func HasScope(ctx context.Context, required string) bool {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return false
	}
	return scope.Satisfies(claims.ScopeList(), required)
}

// isUnprotectedPath reports whether path is a discovery or OAuth endpoint.
func isUnprotectedPath(path string) bool {
	return strings.HasPrefix(path, "/.well-known") || strings.HasPrefix(path, "/oauth")
}

// ValidateToken is middleware that authenticates Bearer tokens.
//
// Discovery and OAuth endpoints pass through untouched. Every other request
// needs a token that verifies against the request's issuer and has not been
// revoked; the claims are then available through ClaimsFromContext. A nil
// Handler means OAuth is disabled and every request passes through.
func (h *Handler) ValidateToken(next http.Handler) http.Handler {
	if h == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isUnprotectedPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		startTime := time.Now()
		ctx, span := h.startSpan(r, "oauth.http.validate_token")
		defer span.End()

		logger := security.LoggerFromContext(ctx, h.logger)
		issuer := h.server.ResolveIssuer(r)

		accessToken, ok := extractBearerToken(r)
		if !ok {
			h.recordTokenValidation(ctx, validationResultMissing)
			h.writeUnauthorizedError(w, issuer, "")
			h.recordHTTPMetrics(ctx, "protected", r.Method, http.StatusUnauthorized, startTime)
			return
		}

		claims, err := h.server.ValidateToken(ctx, accessToken, issuer)
		if err != nil {
			var status int
			switch {
			case errors.Is(err, server.ErrTokenRevoked):
				h.recordTokenValidation(ctx, validationResultRevoked)
				logger.Info("Rejected revoked token")
				h.writeUnauthorizedError(w, issuer, descriptionTokenRevoked)
				status = http.StatusUnauthorized
			case errors.Is(err, security.ErrInvalidToken):
				h.recordTokenValidation(ctx, validationResultInvalid)
				logger.Info("Rejected invalid token", "error", err)
				h.writeUnauthorizedError(w, issuer, descriptionInvalidToken)
				status = http.StatusUnauthorized
			default:
				h.recordTokenValidation(ctx, validationResultError)
				logger.Error("Token validation failed", "error", err)
				instrumentation.RecordError(span, err)
				h.writeError(w, issuer, ErrServerError(""))
				status = http.StatusInternalServerError
			}
			h.recordHTTPMetrics(ctx, "protected", r.Method, status, startTime)
			return
		}

		h.recordTokenValidation(ctx, validationResultValid)
		instrumentation.AddOAuthFlowAttributes(span, "", claims.Scope, claims.Resource)
		instrumentation.SetSpanSuccess(span)

		next.ServeHTTP(w, r.WithContext(ContextWithClaims(ctx, claims)))
	})
}

// RequireScope is middleware that answers 403 insufficient_scope unless the
// claims attached by ValidateToken grant required. A nil Handler means OAuth
// is disabled and every request passes through.
func (h *Handler) RequireScope(required string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if h == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			issuer := h.server.ResolveIssuer(r)
			if _, ok := ClaimsFromContext(r.Context()); !ok {
				h.writeUnauthorizedError(w, issuer, "")
				return
			}
			if !HasScope(r.Context(), required) {
				security.LoggerFromContext(r.Context(), h.logger).Info("Insufficient scope",
					"required_scope", required,
					"path", r.URL.Path)
				h.writeInsufficientScopeError(w, issuer, required)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Protect combines ValidateToken with a RequireScope check per scope.
func (h *Handler) Protect(requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		for i := len(requiredScopes) - 1; i >= 0; i-- {
			next = h.RequireScope(requiredScopes[i])(next)
		}
		return h.ValidateToken(next)
	}
}

// extractBearerToken returns the token of an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, tokenTypeBearer) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// writeUnauthorizedError writes the gate's 401. A non-empty description adds
// error="invalid_token" to the challenge.
func (h *Handler) writeUnauthorizedError(w http.ResponseWriter, issuer, description string) {
	errCode := ""
	if description != "" {
		errCode = ErrorCodeInvalidToken
	}
	w.Header().Set("WWW-Authenticate", formatWWWAuthenticate(issuer, "", errCode, description))
	h.writeJSON(w, issuer, http.StatusUnauthorized, UnauthorizedResponse{
		Error:   ErrorCodeUnauthorized,
		Message: unauthorizedMessage,
	})
}

// writeInsufficientScopeError writes a 403 naming the missing scope (RFC 6750 section 3.1).
func (h *Handler) writeInsufficientScopeError(w http.ResponseWriter, issuer, required string) {
	description := "Token lacks required scope " + required
	w.Header().Set("WWW-Authenticate", formatWWWAuthenticate(issuer, required, ErrorCodeInsufficientScope, description))
	h.writeError(w, issuer, ErrInsufficientScope(description))
}

// formatWWWAuthenticate builds a Bearer challenge with realm and
// resource_metadata, followed by the optional scope, error and
// error_description parameters. Values are escaped as quoted-strings.
//
//	Bearer realm="http://localhost:3000",
//	       resource_metadata="http://localhost:3000/.well-known/oauth-protected-resource",
//	       error="invalid_token", error_description="Invalid token"
func formatWWWAuthenticate(issuer, requiredScope, errCode, errorDesc string) string {
	params := []string{
		fmt.Sprintf(`realm="%s"`, quoteEscape(issuer)),
		fmt.Sprintf(`resource_metadata="%s"`, quoteEscape(endpointURL(issuer, PathProtectedResourceMetadata))),
	}
	if requiredScope != "" {
		params = append(params, fmt.Sprintf(`scope="%s"`, quoteEscape(requiredScope)))
	}
	if errCode != "" {
		params = append(params, fmt.Sprintf(`error="%s"`, errCode))
	}
	if errorDesc != "" {
		params = append(params, fmt.Sprintf(`error_description="%s"`, quoteEscape(errorDesc)))
	}
	return tokenTypeBearer + " " + strings.Join(params, ", ")
}

// quoteEscape escapes backslashes, then quotes.
func quoteEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

func (h *Handler) recordTokenValidation(ctx context.Context, result string) {
	if m := h.metrics(); m != nil {
		m.RecordTokenValidation(ctx, result)
	}
}
