// Package valkey provides a Valkey storage backend for the credential stores.
//
// Valkey is wire-compatible with Redis. Store implements
// [storage.CodeStore], [storage.TokenStore] and [storage.ClientStore] so that
// several server instances can share authorization codes, revocations and
// registered clients.
//
// # Key Schema
//
// All keys use a configurable prefix (default "mcp-test-kits:"):
//
//	{prefix}code:{code}        -> JSON(AuthorizationCode), PX until ExpiresAt
//	{prefix}token:{jti}        -> JSON(TokenRecord), PX until ExpiresAt
//	{prefix}revoked:{jti}      -> "1", PX copied from the token record or RevokedTokenTTL
//	{prefix}client:{clientID}  -> JSON(Client), no expiry
//
// # Atomic Operations
//
// Code consumption relies on DEL returning the number of removed keys, so a
// replayed exchange observes ErrAuthorizationCodeNotFound. Saving a token
// record and revoking a jti run as Lua scripts so a revocation flag never
// expires before the record it guards.
//
// # Configuration
//
//	store, err := valkey.New(valkey.Config{
//	    Address:   "localhost:6379",
//	    KeyPrefix: "mcp-test-kits:",
//	})
//
// With TLS:
//
//	store, err := valkey.New(valkey.Config{
//	    Address:  "valkey.example.com:6379",
//	    Password: os.Getenv("VALKEY_PASSWORD"),
//	    TLS:      &tls.Config{MinVersion: tls.VersionTLS12},
//	})
package valkey
