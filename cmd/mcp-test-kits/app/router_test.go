package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oauth "github.com/midodimori/mcp-test-kits"
	"github.com/midodimori/mcp-test-kits/instrumentation"
	"github.com/midodimori/mcp-test-kits/internal/mcptools"
	"github.com/midodimori/mcp-test-kits/internal/testutil"
	"github.com/midodimori/mcp-test-kits/security"
	"github.com/midodimori/mcp-test-kits/storage/memory"
)

func testRouter(t *testing.T, oauthEnabled bool) http.Handler {
	t.Helper()
	return newTestRouter(t, oauthEnabled, transportHTTP)
}

func newTestRouter(t *testing.T, oauthEnabled bool, transport string) http.Handler {
	t.Helper()

	logger := testutil.DiscardLogger()
	inst, err := instrumentation.New(instrumentation.Config{Enabled: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Shutdown(context.Background()) })

	cfg := &Config{
		Host:      "127.0.0.1",
		Port:      3000,
		LogLevel:  "info",
		LogFormat: logFormatText,
		Storage:   storageMemory,
		OAuth: OAuthConfig{
			Enabled:              oauthEnabled,
			AutoApprove:          true,
			TokenExpiration:      3600,
			AuthorizationCodeTTL: 600,
			SigningSecret:        "router-test-secret",
		},
	}

	var handler *oauth.Handler
	if oauthEnabled {
		handler, err = newOAuthHandler(cfg, memory.New(memory.WithLogger(logger)), inst, logger)
		require.NoError(t, err)
	}

	mcpServer := mcptools.NewServer("mcp-test-kits", "1.0.0", mcptools.WithLogger(logger))
	var sse *mcpserver.SSEServer
	if transport == transportSSE {
		sse = newSSEServer(mcpServer)
		t.Cleanup(func() { _ = sse.Shutdown(context.Background()) })
	}

	return newRouter(routerConfig{
		Logger:          logger,
		OAuth:           handler,
		MCP:             mcpServer,
		SSE:             sse,
		Instrumentation: inst,
		ServeMetrics:    true,
	})
}

func TestRouter_Health(t *testing.T) {
	router := testRouter(t, true)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, pathHealth, nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(security.RequestIDHeader))
}

func TestRouter_Metrics(t *testing.T) {
	router := testRouter(t, false)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, pathMetrics, nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_OAuthEnabled(t *testing.T) {
	router := testRouter(t, true)

	t.Run("discovery is public", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, oauth.PathAuthorizationServerMetadata, nil))

		require.Equal(t, http.StatusOK, w.Code)
		var meta oauth.AuthorizationServerMetadata
		require.NoError(t, json.NewDecoder(w.Body).Decode(&meta))
		assert.Equal(t, "http://127.0.0.1:3000", meta.Issuer)
	})

	t.Run("mcp requires a token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, pathMCP, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t,
			`Bearer realm="http://127.0.0.1:3000", resource_metadata="http://127.0.0.1:3000/.well-known/oauth-protected-resource"`,
			w.Header().Get("WWW-Authenticate"))
	})
}

func TestRouter_OAuthDisabled(t *testing.T) {
	router := testRouter(t, false)

	t.Run("oauth endpoints are not mounted", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, oauth.PathAuthorizationServerMetadata, nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("mcp is open", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, pathMCP, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json, text/event-stream")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.NotEqual(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRouter_SSE(t *testing.T) {
	const challenge = `Bearer realm="http://127.0.0.1:3000", resource_metadata="http://127.0.0.1:3000/.well-known/oauth-protected-resource"`

	t.Run("stream and message endpoints require a token", func(t *testing.T) {
		router := newTestRouter(t, true, transportSSE)

		for _, req := range []*http.Request{
			httptest.NewRequest(http.MethodGet, pathSSE, nil),
			httptest.NewRequest(http.MethodPost, pathMessage+"?sessionId=abc", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)),
		} {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code, req.URL.Path)
			assert.Equal(t, challenge, w.Header().Get("WWW-Authenticate"), req.URL.Path)
		}
	})

	t.Run("streamable endpoint is not mounted", func(t *testing.T) {
		router := newTestRouter(t, false, transportSSE)

		req := httptest.NewRequest(http.MethodPost, pathMCP, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("stream announces the message endpoint", func(t *testing.T) {
		router := newTestRouter(t, false, transportSSE)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, pathSSE, nil).WithContext(ctx))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), "event: endpoint")
		assert.Contains(t, w.Body.String(), pathMessage+"?sessionId=")
	})

	t.Run("message without a session is rejected by the transport", func(t *testing.T) {
		router := newTestRouter(t, false, transportSSE)

		req := httptest.NewRequest(http.MethodPost, pathMessage, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.NotEqual(t, http.StatusUnauthorized, w.Code)
		assert.NotEqual(t, http.StatusNotFound, w.Code)
	})
}
