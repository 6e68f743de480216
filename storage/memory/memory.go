package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/midodimori/mcp-test-kits/instrumentation"
	"github.com/midodimori/mcp-test-kits/internal/util"
	"github.com/midodimori/mcp-test-kits/security"
	"github.com/midodimori/mcp-test-kits/storage"
)

const (
	// tokenIDLogLength is the number of characters of a code or jti that is logged.
	tokenIDLogLength = 8

	// DefaultRevokedTokenTTL bounds revocations of jtis that have no token
	// record. It matches the longest access token lifetime the server allows.
	DefaultRevokedTokenTTL = 24 * time.Hour

	storageType = "memory"
)

// Store is an in-memory credential store implementing CodeStore, TokenStore
// and ClientStore. Expired entries are swept lazily on writes; reads check
// timestamps themselves and never rely on sweeping.
type Store struct {
	mu sync.RWMutex

	codes   map[string]*storage.AuthorizationCode
	tokens  map[string]*storage.TokenRecord
	revoked map[string]time.Time // jti -> time after which the flag may be dropped
	clients map[string]*storage.Client

	now        func() time.Time
	revokedTTL time.Duration
	logger     *slog.Logger

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	// Lock-free sizes for metric collection.
	codesCount   atomic.Int64
	tokensCount  atomic.Int64
	revokedCount atomic.Int64
	clientsCount atomic.Int64
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.CodeStore   = (*Store)(nil)
	_ storage.TokenStore  = (*Store)(nil)
	_ storage.ClientStore = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRevokedTokenTTL sets how long a revocation is kept for a jti without a
// token record. Non-positive values keep the default.
func WithRevokedTokenTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.revokedTTL = ttl
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		codes:      make(map[string]*storage.AuthorizationCode),
		tokens:     make(map[string]*storage.TokenRecord),
		revoked:    make(map[string]time.Time),
		clients:    make(map[string]*storage.Client),
		now:        time.Now,
		revokedTTL: DefaultRevokedTokenTTL,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetInstrumentation enables spans, operation metrics and size gauges.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
	s.syncCountersLocked()
	s.mu.Unlock()

	if inst == nil {
		return
	}
	err := inst.RegisterStorageSizeCallbacks(instrumentation.StorageSizeCallbacks{
		Codes:        s.codesCount.Load,
		TokenRecords: s.tokensCount.Load,
		Revoked:      s.revokedCount.Load,
		Clients:      s.clientsCount.Load,
	})
	if err != nil {
		s.logger.Warn("Failed to register storage size callbacks", "error", err)
	}
}

// ============================================================
// CodeStore Implementation
// ============================================================

// SaveAuthorizationCode stores a code and sweeps expired codes.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_code")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "save_code", &err, time.Now())

	if err = storage.ValidateAuthorizationCode(code); err != nil {
		return err
	}

	stored := *code

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepCodesLocked(s.now())
	s.codes[stored.Code] = &stored
	s.codesCount.Store(int64(len(s.codes)))

	s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(stored.Code, tokenIDLogLength),
		"client_id", stored.ClientID,
		"expires_at", stored.ExpiresAt)
	return nil
}

// GetAuthorizationCode returns a copy of a live code.
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (_ *storage.AuthorizationCode, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_code")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "get_code", &err, time.Now())

	s.mu.RLock()
	stored, ok := s.codes[code]
	s.mu.RUnlock()

	if !ok || security.IsExpiredAt(stored.ExpiresAt, s.now()) {
		return nil, storage.ErrAuthorizationCodeNotFound
	}
	out := *stored
	return &out, nil
}

// DeleteAuthorizationCode consumes a code. Only one of several concurrent
// callers succeeds; the rest get ErrAuthorizationCodeNotFound.
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) (err error) {
	ctx, span := s.startStorageSpan(ctx, "delete_code")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "delete_code", &err, time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[code]; !ok {
		return storage.ErrAuthorizationCodeNotFound
	}
	delete(s.codes, code)
	s.codesCount.Store(int64(len(s.codes)))
	return nil
}

// ============================================================
// TokenStore Implementation
// ============================================================

// SaveTokenRecord stores a record and sweeps expired records together with
// their revocation flags.
func (s *Store) SaveTokenRecord(ctx context.Context, record *storage.TokenRecord) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_token_record")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "save_token_record", &err, time.Now())

	if err = storage.ValidateTokenRecord(record); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepTokensLocked(s.now())
	s.tokens[record.JTI] = record.Clone()
	if until, ok := s.revoked[record.JTI]; ok && until.Before(record.ExpiresAt) {
		s.revoked[record.JTI] = record.ExpiresAt
	}
	s.tokensCount.Store(int64(len(s.tokens)))

	s.logger.Debug("Saved token record",
		"jti_prefix", util.SafeTruncate(record.JTI, tokenIDLogLength),
		"expires_at", record.ExpiresAt)
	return nil
}

// IsRevoked reports whether jti is in the revoked set.
func (s *Store) IsRevoked(ctx context.Context, jti string) (_ bool, err error) {
	ctx, span := s.startStorageSpan(ctx, "is_revoked")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "is_revoked", &err, time.Now())

	s.mu.RLock()
	_, ok := s.revoked[jti]
	s.mu.RUnlock()
	return ok, nil
}

// RevokeToken adds jti to the revoked set. A flag for a tracked token lives as
// long as its record; otherwise it is kept for the revoked token TTL.
func (s *Store) RevokeToken(ctx context.Context, jti string) (err error) {
	ctx, span := s.startStorageSpan(ctx, "revoke_token")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "revoke_token", &err, time.Now())

	if jti == "" {
		err = fmt.Errorf("%w: jti cannot be empty", storage.ErrInvalidRecord)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepTokensLocked(now)

	until := now.Add(s.revokedTTL)
	if record, ok := s.tokens[jti]; ok {
		until = record.ExpiresAt
	}
	if existing, ok := s.revoked[jti]; !ok || existing.Before(until) {
		s.revoked[jti] = until
	}
	s.revokedCount.Store(int64(len(s.revoked)))

	s.logger.Debug("Revoked token", "jti_prefix", util.SafeTruncate(jti, tokenIDLogLength))
	return nil
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient stores a copy of client.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_client")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "save_client", &err, time.Now())

	if err = storage.ValidateClient(client); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients[client.ClientID] = client.Clone()
	s.clientsCount.Store(int64(len(s.clients)))

	s.logger.Debug("Saved client", "client_id", client.ClientID, "client_name", client.ClientName)
	return nil
}

// GetClient returns a copy of the registered client.
func (s *Store) GetClient(ctx context.Context, clientID string) (_ *storage.Client, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "get_client", &err, time.Now())

	s.mu.RLock()
	client, ok := s.clients[clientID]
	s.mu.RUnlock()

	if !ok {
		return nil, storage.ErrClientNotFound
	}
	return client.Clone(), nil
}

// ============================================================
// Sweeping
// ============================================================

// Stats is a point-in-time count of each namespace.
type Stats struct {
	Codes        int
	TokenRecords int
	Revoked      int
	Clients      int
}

// Stats returns the current namespace sizes, including expired entries that
// have not been swept yet.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Codes:        len(s.codes),
		TokenRecords: len(s.tokens),
		Revoked:      len(s.revoked),
		Clients:      len(s.clients),
	}
}

// Sweep removes every expired code, token record and revocation flag.
func (s *Store) Sweep(ctx context.Context) {
	_, span := s.startStorageSpan(ctx, "sweep")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	codes := s.sweepCodesLocked(now)
	tokens := s.sweepTokensLocked(now)

	instrumentation.SetSpanAttributes(span,
		attribute.Int("swept.codes", codes),
		attribute.Int("swept.tokens", tokens),
	)
}

func (s *Store) sweepCodesLocked(now time.Time) int {
	removed := 0
	for key, code := range s.codes {
		if security.IsExpiredAt(code.ExpiresAt, now) {
			delete(s.codes, key)
			removed++
		}
	}
	if removed > 0 {
		s.codesCount.Store(int64(len(s.codes)))
		s.logger.Debug("Swept expired authorization codes", "count", removed)
	}
	return removed
}

// sweepTokensLocked drops expired records and their revocation flags, then any
// unbound revocation flag past its own expiry. A flag is never dropped while
// its record is still live.
func (s *Store) sweepTokensLocked(now time.Time) int {
	removed := 0
	for jti, record := range s.tokens {
		if security.IsExpiredAt(record.ExpiresAt, now) {
			delete(s.tokens, jti)
			delete(s.revoked, jti)
			removed++
		}
	}
	for jti, until := range s.revoked {
		if _, tracked := s.tokens[jti]; !tracked && security.IsExpiredAt(until, now) {
			delete(s.revoked, jti)
		}
	}
	s.tokensCount.Store(int64(len(s.tokens)))
	s.revokedCount.Store(int64(len(s.revoked)))
	if removed > 0 {
		s.logger.Debug("Swept expired token records", "count", removed)
	}
	return removed
}

func (s *Store) syncCountersLocked() {
	s.codesCount.Store(int64(len(s.codes)))
	s.tokensCount.Store(int64(len(s.tokens)))
	s.revokedCount.Store(int64(len(s.revoked)))
	s.clientsCount.Store(int64(len(s.clients)))
}

// ============================================================
// Instrumentation Helpers
// ============================================================

func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := s.tracer.Start(ctx, "storage."+operation)
	instrumentation.AddStorageAttributes(span, operation, storageType)
	return ctx, span
}

// recordStorageOperation is deferred with a pointer to the named error result
// so it observes the final outcome.
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, errp *error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	result := "success"
	if err := *errp; err != nil {
		result = "error"
		instrumentation.RecordError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}

	durationMs := float64(time.Since(startTime).Microseconds()) / 1000
	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
