package valkey

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/midodimori/mcp-test-kits/internal/util"
	"github.com/midodimori/mcp-test-kits/storage"
)

// luaSaveTokenRecord stores a token record and stretches an existing
// revocation flag so it lives at least as long as the record.
//
// KEYS[1] = token record key
// KEYS[2] = revoked flag key
// ARGV[1] = record JSON
// ARGV[2] = record TTL in milliseconds
const luaSaveTokenRecord = `
local ttl = tonumber(ARGV[2])
redis.call('SET', KEYS[1], ARGV[1], 'PX', ttl)
local current = redis.call('PTTL', KEYS[2])
if current >= 0 and current < ttl then
  redis.call('PEXPIRE', KEYS[2], ttl)
end
return 1
`

// luaRevokeToken sets a revocation flag. The flag copies the remaining TTL of
// the token record, or falls back to ARGV[1] when no record exists. An
// existing flag is never shortened.
//
// KEYS[1] = token record key
// KEYS[2] = revoked flag key
// ARGV[1] = fallback TTL in milliseconds
const luaRevokeToken = `
local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
  ttl = tonumber(ARGV[1])
end
local current = redis.call('PTTL', KEYS[2])
if current == -1 or current >= ttl then
  return 0
end
redis.call('SET', KEYS[2], '1', 'PX', ttl)
return 1
`

// SaveTokenRecord records an issued token until its ExpiresAt.
func (s *Store) SaveTokenRecord(ctx context.Context, record *storage.TokenRecord) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_token_record")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "save_token_record", &err, time.Now())

	if err = storage.ValidateTokenRecord(record); err != nil {
		return err
	}

	ttl := s.ttlUntil(record.ExpiresAt)
	if ttl == 0 {
		return nil
	}

	data, err := marshalJSON(record)
	if err != nil {
		return err
	}

	err = s.client.Do(ctx,
		s.client.B().Eval().Script(luaSaveTokenRecord).
			Numkeys(2).
			Key(s.tokenKey(record.JTI), s.revokedKey(record.JTI)).
			Arg(data, strconv.FormatInt(ttl.Milliseconds(), 10)).
			Build(),
	).Error()
	if err != nil {
		return fmt.Errorf("failed to save token record: %w", err)
	}

	s.logger.Debug("Saved token record",
		"jti_prefix", util.SafeTruncate(record.JTI, tokenIDLogLength),
		"expires_at", record.ExpiresAt)
	return nil
}

// IsRevoked reports whether a revocation flag exists for jti.
func (s *Store) IsRevoked(ctx context.Context, jti string) (_ bool, err error) {
	ctx, span := s.startStorageSpan(ctx, "is_revoked")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "is_revoked", &err, time.Now())

	n, err := s.client.Do(ctx, s.client.B().Exists().Key(s.revokedKey(jti)).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return n > 0, nil
}

// RevokeToken marks jti revoked.
func (s *Store) RevokeToken(ctx context.Context, jti string) (err error) {
	ctx, span := s.startStorageSpan(ctx, "revoke_token")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "revoke_token", &err, time.Now())

	if jti == "" {
		err = fmt.Errorf("%w: jti cannot be empty", storage.ErrInvalidRecord)
		return err
	}

	err = s.client.Do(ctx,
		s.client.B().Eval().Script(luaRevokeToken).
			Numkeys(2).
			Key(s.tokenKey(jti), s.revokedKey(jti)).
			Arg(strconv.FormatInt(s.revokedTTL.Milliseconds(), 10)).
			Build(),
	).Error()
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	s.logger.Debug("Revoked token", "jti_prefix", util.SafeTruncate(jti, tokenIDLogLength))
	return nil
}
