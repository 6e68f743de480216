// Package server implements the authorization-code-with-PKCE state machine.
//
// The Server type validates authorization requests, issues single-use codes,
// exchanges them for signed access tokens, tracks revocation and registers
// clients dynamically. It is transport-agnostic: the root package translates
// HTTP requests into calls on Server and maps returned *Error values onto
// responses.
//
// Collaborators are injected:
//   - Credential stores (storage package; memory or valkey)
//   - Token signing and verification (security.TokenCodec)
//   - Scope matching (scope package)
//
// Example usage:
//
//	store := memory.New()
//	codec, _ := security.NewTokenCodec([]byte(secret))
//
//	srv, err := server.New(store, store, store, codec, &server.Config{
//	    AutoApprove: true,
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
package server
