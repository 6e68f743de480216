package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	oauth "github.com/midodimori/mcp-test-kits"
	"github.com/midodimori/mcp-test-kits/instrumentation"
	"github.com/midodimori/mcp-test-kits/internal/mcptools"
	"github.com/midodimori/mcp-test-kits/security"
	"github.com/midodimori/mcp-test-kits/storage"
	"github.com/midodimori/mcp-test-kits/storage/memory"
	"github.com/midodimori/mcp-test-kits/storage/valkey"
)

const (
	gracefulTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second
)

// credentialStore is a backend serving all three storage interfaces.
type credentialStore interface {
	storage.CodeStore
	storage.TokenStore
	storage.ClientStore
	SetInstrumentation(*instrumentation.Instrumentation)
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP test server",
		Long: `Start the MCP test server.

--transport selects how MCP is served. "http" (the default) serves the
streamable HTTP endpoint at /mcp on --host:--port; "sse" serves the event
stream at /sse and accepts client messages at /message; "stdio" reads and
writes newline-delimited JSON-RPC on standard input and output.

With --oauth the HTTP endpoints require a Bearer token, and the
authorization server endpoints are mounted under /oauth and /.well-known.
OAuth is not available over stdio. --no-tools, --no-resources and
--no-prompts leave the matching capability out of the server. Every flag can also be set through an MCP_TEST_KITS_ prefixed
environment variable, for example MCP_TEST_KITS_OAUTH_SIGNING_SECRET.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, newLogger(cmd.ErrOrStderr(), cfg))
		},
	}

	if err := addServeFlags(cmd.Flags(), v); err != nil {
		slog.Error("Failed to register serve flags", "error", err)
	}
	return cmd
}

// runServe starts the server and blocks until ctx is cancelled.
func runServe(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName:    cfg.ServerName,
		ServiceVersion: cfg.ServerVersion,
		Enabled:        cfg.Metrics.Enabled,
		TracesEndpoint: cfg.Metrics.TracesEndpoint,
		LogClientIPs:   cfg.Metrics.TraceClientIPs,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize instrumentation: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
		defer cancel()
		if err := inst.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to shut down instrumentation", "error", err)
		}
	}()

	var handler *oauth.Handler
	if cfg.OAuth.Enabled {
		store, closeStore, err := newCredentialStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()
		store.SetInstrumentation(inst)

		handler, err = newOAuthHandler(cfg, store, inst, logger)
		if err != nil {
			return err
		}
	}

	mcpServer := mcptools.NewServer(cfg.ServerName, cfg.ServerVersion,
		mcptools.WithLogger(logger),
		mcptools.WithScopeEnforcement(cfg.OAuth.Enabled),
		mcptools.WithInstrumentation(inst),
		mcptools.WithCapabilities(cfg.Capabilities),
	)

	if cfg.Transport == transportStdio {
		return runStdio(ctx, mcpServer, os.Stdin, os.Stdout, logger)
	}

	var sseServer *mcpserver.SSEServer
	endpoints := []string{pathMCP}
	if cfg.Transport == transportSSE {
		sseServer = newSSEServer(mcpServer)
		endpoints = []string{pathSSE, pathMessage}
	}

	httpServer := &http.Server{
		Addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler: newRouter(routerConfig{
			Logger:          logger,
			OAuth:           handler,
			MCP:             mcpServer,
			SSE:             sseServer,
			Instrumentation: inst,
			ServeMetrics:    cfg.Metrics.Enabled,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("MCP server listening",
			"addr", httpServer.Addr,
			"transport", cfg.Transport,
			"endpoints", endpoints,
			"oauth", cfg.OAuth.Enabled,
			"storage", cfg.Storage,
			"metrics", cfg.Metrics.Enabled)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
	defer cancel()
	if sseServer != nil {
		if err := sseServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to close SSE sessions", "error", err)
		}
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("Server shutdown complete")
	return nil
}

// runStdio serves mcp as newline-delimited JSON-RPC over in and out until ctx
// ends or in reaches EOF. Logs stay on the logger's writer so out carries
// protocol messages only.
func runStdio(ctx context.Context, mcp *mcpserver.MCPServer, in io.Reader, out io.Writer, logger *slog.Logger) error {
	stdio := mcpserver.NewStdioServer(mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))

	logger.Info("MCP server serving on stdio")
	if err := stdio.Listen(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio transport failed: %w", err)
	}
	logger.Info("Server shutdown complete")
	return nil
}

// newOAuthHandler wires the token codec, flow controller and HTTP handler.
func newOAuthHandler(cfg *Config, store credentialStore, inst *instrumentation.Instrumentation, logger *slog.Logger) (*oauth.Handler, error) {
	codec, err := security.NewTokenCodec([]byte(cfg.OAuth.SigningSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to create token codec: %w", err)
	}

	srv, err := oauth.NewServer(store, store, store, codec, cfg.ServerConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create OAuth server: %w", err)
	}
	srv.SetInstrumentation(inst)

	return oauth.NewHandler(srv, logger), nil
}

// newCredentialStore opens the configured backend. The returned func
// releases it.
func newCredentialStore(ctx context.Context, cfg *Config, logger *slog.Logger) (credentialStore, func(), error) {
	switch cfg.Storage {
	case storageValkey:
		store, err := valkey.New(valkey.Config{
			Address:   cfg.Valkey.Address,
			Password:  cfg.Valkey.Password,
			DB:        cfg.Valkey.DB,
			KeyPrefix: cfg.Valkey.KeyPrefix,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open valkey storage: %w", err)
		}
		return store, store.Close, nil
	default:
		store := memory.New(memory.WithLogger(logger))
		sweepCtx, cancel := context.WithCancel(ctx)
		go runSweeper(sweepCtx, store, cfg.CleanupInterval)
		return store, cancel, nil
	}
}

// runSweeper drops expired entries from store every interval until ctx ends.
func runSweeper(ctx context.Context, store *memory.Store, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Sweep(ctx)
		}
	}
}

// newLogger builds the process logger from the log level and format.
func newLogger(w io.Writer, cfg *Config) *slog.Logger {
	level, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.LogFormat == logFormatJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}
