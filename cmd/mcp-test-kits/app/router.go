package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	oauth "github.com/midodimori/mcp-test-kits"
	"github.com/midodimori/mcp-test-kits/instrumentation"
	"github.com/midodimori/mcp-test-kits/security"
)

const (
	pathMCP     = "/mcp"
	pathSSE     = "/sse"
	pathMessage = "/message"
	pathHealth  = "/health"
	pathMetrics = "/metrics"

	httpSpanName = "mcp-test-kits"
)

// routerConfig holds what newRouter mounts. OAuth is nil when OAuth is
// disabled, which turns the bearer gate into a pass-through. A non-nil SSE
// replaces the streamable /mcp endpoint with the /sse and /message pair.
type routerConfig struct {
	Logger          *slog.Logger
	OAuth           *oauth.Handler
	MCP             *mcpserver.MCPServer
	SSE             *mcpserver.SSEServer
	Instrumentation *instrumentation.Instrumentation
	ServeMetrics    bool
}

// newRouter builds the HTTP surface: health, metrics, the OAuth endpoints
// and the gated MCP endpoints.
func newRouter(cfg routerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer,
		security.RequestIDMiddleware,
		accessLog(cfg.Logger),
	)

	r.Get(pathHealth, serveHealth)
	if cfg.ServeMetrics && cfg.Instrumentation != nil {
		r.Handle(pathMetrics, cfg.Instrumentation.MetricsHandler())
	}

	if cfg.OAuth != nil {
		cfg.OAuth.RegisterRoutes(r)
	}

	gate := cfg.OAuth.Protect()
	if cfg.SSE != nil {
		r.Handle(pathSSE, gate(cfg.SSE.SSEHandler()))
		r.Handle(pathMessage, gate(cfg.SSE.MessageHandler()))
	} else {
		streamable := mcpserver.NewStreamableHTTPServer(cfg.MCP,
			mcpserver.WithEndpointPath(pathMCP),
			mcpserver.WithStateLess(true),
			mcpserver.WithHTTPContextFunc(claimsContext),
		)
		r.Handle(pathMCP, gate(streamable))
	}

	if cfg.Instrumentation == nil {
		return r
	}
	return otelhttp.NewHandler(r, httpSpanName,
		otelhttp.WithTracerProvider(cfg.Instrumentation.TracerProvider()),
		otelhttp.WithMeterProvider(cfg.Instrumentation.MeterProvider()),
	)
}

// newSSEServer serves mcp over server-sent events: clients hold a stream open
// on /sse and post requests to /message?sessionId=<id>.
func newSSEServer(mcp *mcpserver.MCPServer) *mcpserver.SSEServer {
	return mcpserver.NewSSEServer(mcp,
		mcpserver.WithSSEEndpoint(pathSSE),
		mcpserver.WithMessageEndpoint(pathMessage),
		mcpserver.WithSSEContextFunc(claimsContext),
	)
}

// claimsContext carries verified token claims from the HTTP request into the
// context tool handlers see.
func claimsContext(ctx context.Context, r *http.Request) context.Context {
	if claims, ok := oauth.ClaimsFromContext(r.Context()); ok {
		return oauth.ContextWithClaims(ctx, claims)
	}
	return ctx
}

func serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// accessLog logs one line per request at debug level, or at warn for 5xx.
func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			level := slog.LevelDebug
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			security.LoggerFromContext(r.Context(), logger).Log(r.Context(), level, "HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds())
		})
	}
}
