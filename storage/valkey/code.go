package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/midodimori/mcp-test-kits/internal/util"
	"github.com/midodimori/mcp-test-kits/security"
	"github.com/midodimori/mcp-test-kits/storage"
)

// SaveAuthorizationCode stores a code with a TTL matching its ExpiresAt. A
// code that has already expired is not written.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_code")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "save_code", &err, time.Now())

	if err = storage.ValidateAuthorizationCode(code); err != nil {
		return err
	}

	ttl := s.ttlUntil(code.ExpiresAt)
	if ttl == 0 {
		s.logger.Debug("Skipped saving expired authorization code",
			"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength))
		return nil
	}

	if err = s.setJSON(ctx, s.codeKey(code.Code), code, ttl); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength),
		"client_id", code.ClientID,
		"expires_at", code.ExpiresAt)
	return nil
}

// GetAuthorizationCode retrieves a live authorization code. The stored
// ExpiresAt is checked as well as the key TTL.
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (_ *storage.AuthorizationCode, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_code")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "get_code", &err, time.Now())

	authCode, err := getJSON[storage.AuthorizationCode](ctx, s, s.codeKey(code), storage.ErrAuthorizationCodeNotFound)
	if err != nil {
		return nil, err
	}
	if security.IsExpiredAt(authCode.ExpiresAt, s.now()) {
		return nil, storage.ErrAuthorizationCodeNotFound
	}
	return authCode, nil
}

// DeleteAuthorizationCode consumes a code. DEL is atomic, so only one of
// several concurrent callers sees a deleted key; the rest get
// ErrAuthorizationCodeNotFound.
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) (err error) {
	ctx, span := s.startStorageSpan(ctx, "delete_code")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "delete_code", &err, time.Now())

	deleted, err := s.client.Do(ctx, s.client.B().Del().Key(s.codeKey(code)).Build()).AsInt64()
	if err != nil {
		return fmt.Errorf("failed to delete authorization code: %w", err)
	}
	if deleted == 0 {
		return storage.ErrAuthorizationCodeNotFound
	}

	s.logger.Debug("Deleted authorization code",
		"code_prefix", util.SafeTruncate(code, tokenIDLogLength))
	return nil
}
