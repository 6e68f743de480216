// Package memory provides an in-memory implementation of the credential
// storage interfaces.
//
// Store implements storage.CodeStore, storage.TokenStore and
// storage.ClientStore with maps guarded by a sync.RWMutex. There is no
// background goroutine: expired codes and token records are swept lazily on
// writes, and reads compare timestamps against the injected clock so an
// unswept entry is never returned.
//
// Revocation flags outlive nothing they guard. A flag for a tracked token is
// removed together with the token record once it expires; a flag for an
// unknown jti is kept for the revoked token TTL (24h by default).
//
// Example usage:
//
//	store := memory.New(memory.WithLogger(logger))
//	srv, _ := oauth.NewServer(store, store, store, codec, config, logger)
package memory
