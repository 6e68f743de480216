// Package storage defines the credential store used by the authorization server.
//
// The store is split into three capabilities, each with its own interface so
// backends and tests can provide them independently:
//   - CodeStore: pending single-use authorization codes
//   - TokenStore: issued access token records and the revoked jti set
//   - ClientStore: dynamically registered clients
//
// Implementations are provided in subpackages:
//   - storage/memory: process-local maps with lazy expiry sweeping
//   - storage/valkey: Valkey/Redis-compatible storage using native key TTLs
//   - storage/mock: function-field mocks for failure injection in tests
package storage
