// Package security holds the cryptographic and HTTP hardening primitives used
// by the authorization server.
//
// # Access tokens
//
// TokenCodec issues compact HS256 JWTs and verifies them against an expected
// issuer. The HMAC key is derived from an operator supplied secret with
// HKDF-SHA256; there is no built-in default secret.
//
//	codec, err := security.NewTokenCodec([]byte(os.Getenv("MCP_TEST_KITS_OAUTH_SIGNING_SECRET")))
//	token, claims, err := codec.Issue("test-user", "mcp:tools:echo", issuer, issuer, time.Hour)
//	claims, err = codec.Verify(token, issuer)
//
// Every verification failure wraps ErrInvalidToken. Callers report a single
// invalid_token error to clients and keep the wrapped cause for logs.
//
// # PKCE
//
// VerifyPKCE implements the S256 method of RFC 7636 with a constant time
// comparison. The plain method is not supported.
//
// # HTTP helpers
//
// SetSecurityHeaders and SetConsentPageHeaders apply response hardening,
// RequestIDMiddleware assigns correlation IDs, and ClientIP / RequestScheme read
// proxy headers only when explicitly trusted.
package security
