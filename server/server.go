package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/midodimori/mcp-test-kits/instrumentation"
	"github.com/midodimori/mcp-test-kits/security"
	"github.com/midodimori/mcp-test-kits/storage"
)

// tokenIDLogLength is the number of characters of a code or jti that is logged.
const tokenIDLogLength = 8

// Server implements the authorization flow state machine.
// It coordinates the credential stores and the token codec.
type Server struct {
	codeStore   storage.CodeStore
	tokenStore  storage.TokenStore
	clientStore storage.ClientStore
	codec       *security.TokenCodec
	now         func() time.Time

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	Logger *slog.Logger
	Config *Config
}

// New creates a new OAuth server
func New(
	codeStore storage.CodeStore,
	tokenStore storage.TokenStore,
	clientStore storage.ClientStore,
	codec *security.TokenCodec,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if codeStore == nil {
		return nil, fmt.Errorf("code store is required")
	}
	if tokenStore == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if clientStore == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if codec == nil {
		return nil, fmt.Errorf("token codec is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applyDefaults(config)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	return &Server{
		codeStore:   codeStore,
		tokenStore:  tokenStore,
		clientStore: clientStore,
		codec:       codec,
		now:         time.Now,
		Logger:      logger,
		Config:      config,
	}, nil
}

// SetClock overrides the time source used for code expiry and client
// registration timestamps. The token codec has its own clock.
func (s *Server) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetInstrumentation enables spans and metrics for flow operations.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("server")
	}
}

// Instrumentation returns the configured instrumentation, or nil.
func (s *Server) Instrumentation() *instrumentation.Instrumentation {
	return s.instrumentation
}

// Codec returns the token codec.
func (s *Server) Codec() *security.TokenCodec {
	return s.codec
}

func (s *Server) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

// metrics returns the metrics holder, or nil when instrumentation is off.
func (s *Server) metrics() *instrumentation.Metrics {
	if s.instrumentation == nil {
		return nil
	}
	return s.instrumentation.Metrics()
}
