package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"
	"go.opentelemetry.io/otel/trace"

	"github.com/midodimori/mcp-test-kits/instrumentation"
	"github.com/midodimori/mcp-test-kits/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "mcp-test-kits:"

	// DefaultRevokedTokenTTL bounds revocations of jtis that have no token record.
	DefaultRevokedTokenTTL = 24 * time.Hour

	// tokenIDLogLength is the number of characters to include when logging codes and jtis
	tokenIDLogLength = 8

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second

	storageType = "valkey"
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "mcp-test-kits:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// DisableCache turns off client-side caching. Servers without
	// CLIENT TRACKING support need this.
	DisableCache bool

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger

	// RevokedTokenTTL is how long a revocation is kept for a jti without a
	// token record. Default: 24h
	RevokedTokenTTL time.Duration

	// Clock overrides time.Now for expiry checks. Key TTLs are still enforced
	// by the server.
	Clock func() time.Time
}

// Store is a Valkey-backed implementation of CodeStore, TokenStore and
// ClientStore. Every entry carries a server-side TTL, so there is nothing to
// sweep.
type Store struct {
	client     valkeygo.Client
	prefix     string
	logger     *slog.Logger
	revokedTTL time.Duration
	now        func() time.Time

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.CodeStore   = (*Store)(nil)
	_ storage.TokenStore  = (*Store)(nil)
	_ storage.ClientStore = (*Store)(nil)
)

// New creates a new Valkey-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	opts := valkeygo.ClientOption{
		InitAddress:  []string{cfg.Address},
		SelectDB:     cfg.DB,
		DisableCache: cfg.DisableCache,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	s := newStore(client, cfg)
	s.logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", s.prefix)
	return s, nil
}

func newStore(client valkeygo.Client, cfg Config) *Store {
	s := &Store{
		client:     client,
		prefix:     cfg.KeyPrefix,
		logger:     cfg.Logger,
		revokedTTL: cfg.RevokedTokenTTL,
		now:        cfg.Clock,
	}
	if s.prefix == "" {
		s.prefix = DefaultKeyPrefix
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.revokedTTL <= 0 {
		s.revokedTTL = DefaultRevokedTokenTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetInstrumentation enables per-operation spans and metrics.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
}

func (s *Store) codeKey(code string) string {
	return fmt.Sprintf("%scode:%s", s.prefix, code)
}

func (s *Store) tokenKey(jti string) string {
	return fmt.Sprintf("%stoken:%s", s.prefix, jti)
}

func (s *Store) revokedKey(jti string) string {
	return fmt.Sprintf("%srevoked:%s", s.prefix, jti)
}

func (s *Store) clientKey(clientID string) string {
	return fmt.Sprintf("%sclient:%s", s.prefix, clientID)
}

// ttlUntil returns the time left until expiresAt, or 0 when less than a
// millisecond is left. PX takes whole milliseconds and rejects 0.
func (s *Store) ttlUntil(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(s.now())
	if ttl < time.Millisecond {
		return 0
	}
	return ttl
}

// getJSON fetches key and unmarshals it into a new T. A missing key yields
// notFoundErr.
func getJSON[T any](ctx context.Context, s *Store, key string, notFoundErr error) (*T, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return nil, notFoundErr
		}
		return nil, fmt.Errorf("failed to get data: %w", err)
	}

	var out T
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return &out, nil
}

func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data: %w", err)
	}
	return string(data), nil
}

// setJSON stores v under key. A zero ttl stores the key without expiry.
func (s *Store) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := marshalJSON(v)
	if err != nil {
		return err
	}

	cmd := s.client.B().Set().Key(key).Value(data)
	if ttl > 0 {
		return s.client.Do(ctx, cmd.Px(ttl).Build()).Error()
	}
	return s.client.Do(ctx, cmd.Build()).Error()
}

func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := s.tracer.Start(ctx, "storage."+operation)
	instrumentation.AddStorageAttributes(span, operation, storageType)
	return ctx, span
}

func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, errp *error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	result := "success"
	if err := *errp; err != nil {
		// Not-found is an expected outcome, not a backend failure.
		if errors.Is(err, storage.ErrAuthorizationCodeNotFound) || errors.Is(err, storage.ErrClientNotFound) {
			result = "not_found"
		} else {
			result = "error"
			instrumentation.RecordError(span, err)
		}
	} else {
		instrumentation.SetSpanSuccess(span)
	}

	durationMs := float64(time.Since(startTime).Microseconds()) / 1000
	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
