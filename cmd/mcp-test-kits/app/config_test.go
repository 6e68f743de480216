package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midodimori/mcp-test-kits/internal/mcptools"
)

func newTestViper(t *testing.T, args ...string) *viper.Viper {
	t.Helper()

	v := newViper()
	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	require.NoError(t, addServeFlags(flags, v))
	require.NoError(t, flags.Parse(args))
	return v
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(newTestViper(t))
	require.NoError(t, err)

	assert.Equal(t, transportHTTP, cfg.Transport)
	assert.Equal(t, mcptools.AllCapabilities(), cfg.Capabilities)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "mcp-test-kits", cfg.ServerName)
	assert.False(t, cfg.OAuth.Enabled)
	assert.False(t, cfg.OAuth.AutoApprove)
	assert.Equal(t, int64(3600), cfg.OAuth.TokenExpiration)
	assert.Equal(t, int64(600), cfg.OAuth.AuthorizationCodeTTL)
	assert.Equal(t, storageMemory, cfg.Storage)
	assert.Equal(t, time.Minute, cfg.CleanupInterval)
}

func TestLoadConfig_MetricsFlags(t *testing.T) {
	cfg, err := loadConfig(newTestViper(t,
		"--metrics",
		"--traces-endpoint", "http://otel:4318/v1/traces",
		"--trace-client-ips",
	))
	require.NoError(t, err)

	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "http://otel:4318/v1/traces", cfg.Metrics.TracesEndpoint)
	assert.True(t, cfg.Metrics.TraceClientIPs)
}

func TestLoadConfig_TransportAndCapabilities(t *testing.T) {
	tests := []struct {
		name          string
		args          []string
		env           map[string]string
		wantTransport string
		wantCaps      mcptools.Capabilities
	}{
		{
			name:          "stdio without tools",
			args:          []string{"--transport", "stdio", "--no-tools"},
			wantTransport: transportStdio,
			wantCaps:      mcptools.Capabilities{Resources: true, Prompts: true},
		},
		{
			name:          "short flag is case insensitive",
			args:          []string{"-t", "SSE", "--no-resources", "--no-prompts"},
			wantTransport: transportSSE,
			wantCaps:      mcptools.Capabilities{Tools: true},
		},
		{
			name: "environment",
			env: map[string]string{
				"MCP_TEST_KITS_TRANSPORT":  "sse",
				"MCP_TEST_KITS_NO_PROMPTS": "true",
			},
			wantTransport: transportSSE,
			wantCaps:      mcptools.Capabilities{Tools: true, Resources: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := loadConfig(newTestViper(t, tt.args...))
			require.NoError(t, err)
			assert.Equal(t, tt.wantTransport, cfg.Transport)
			assert.Equal(t, tt.wantCaps, cfg.Capabilities)
		})
	}
}

func TestLoadConfig_Flags(t *testing.T) {
	cfg, err := loadConfig(newTestViper(t,
		"--host", "0.0.0.0",
		"--port", "8080",
		"--oauth",
		"--auto-approve",
		"--signing-secret", "s3cret",
		"--token-expiration", "120",
		"--storage", "valkey",
		"--valkey-address", "valkey:6379",
	))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.OAuth.Enabled)
	assert.True(t, cfg.OAuth.AutoApprove)
	assert.Equal(t, "s3cret", cfg.OAuth.SigningSecret)
	assert.Equal(t, int64(120), cfg.OAuth.TokenExpiration)
	assert.Equal(t, storageValkey, cfg.Storage)
	assert.Equal(t, "valkey:6379", cfg.Valkey.Address)

	serverCfg := cfg.ServerConfig()
	assert.Equal(t, "0.0.0.0", serverCfg.Host)
	assert.Equal(t, 8080, serverCfg.Port)
	assert.Equal(t, int64(120), serverCfg.AccessTokenTTL)
	assert.True(t, serverCfg.AutoApprove)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("MCP_TEST_KITS_OAUTH_ENABLED", "true")
	t.Setenv("MCP_TEST_KITS_OAUTH_SIGNING_SECRET", "from-env")
	t.Setenv("MCP_TEST_KITS_OAUTH_ISSUER", "https://mcp.example.com")
	t.Setenv("MCP_TEST_KITS_PORT", "4000")

	cfg, err := loadConfig(newTestViper(t))
	require.NoError(t, err)

	assert.True(t, cfg.OAuth.Enabled)
	assert.Equal(t, "from-env", cfg.OAuth.SigningSecret)
	assert.Equal(t, "https://mcp.example.com", cfg.OAuth.Issuer)
	assert.Equal(t, 4000, cfg.Port)
}

func TestLoadConfig_FlagOverridesEnvironment(t *testing.T) {
	t.Setenv("MCP_TEST_KITS_PORT", "4000")

	cfg, err := loadConfig(newTestViper(t, "--port", "5000"))
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Port)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 3100
oauth:
  enabled: true
  auto-approve: true
  signing-secret: file-secret
`), 0o600))

	v := newTestViper(t)
	v.Set(keyConfig, path)

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 3100, cfg.Port)
	assert.True(t, cfg.OAuth.Enabled)
	assert.True(t, cfg.OAuth.AutoApprove)
	assert.Equal(t, "file-secret", cfg.OAuth.SigningSecret)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "oauth without secret",
			args:    []string{"--oauth"},
			wantErr: "signing secret is required",
		},
		{
			name:    "token lifetime out of range",
			args:    []string{"--oauth", "--signing-secret", "x", "--token-expiration", "10"},
			wantErr: "access token TTL",
		},
		{
			name:    "code lifetime out of range",
			args:    []string{"--oauth", "--signing-secret", "x", "--authorization-code-ttl", "3600"},
			wantErr: "authorization code TTL",
		},
		{
			name:    "unknown storage",
			args:    []string{"--storage", "postgres"},
			wantErr: "invalid storage",
		},
		{
			name:    "unknown log level",
			args:    []string{"--log-level", "loud"},
			wantErr: "invalid log level",
		},
		{
			name:    "unknown log format",
			args:    []string{"--log-format", "xml"},
			wantErr: "invalid log format",
		},
		{
			name:    "unknown transport",
			args:    []string{"--transport", "websocket"},
			wantErr: "invalid transport",
		},
		{
			name:    "oauth over stdio",
			args:    []string{"--transport", "stdio", "--oauth", "--signing-secret", "x"},
			wantErr: "OAuth requires the http or sse transport",
		},
		{
			name:    "port out of range",
			args:    []string{"--port", "70000"},
			wantErr: "invalid port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(newTestViper(t, tt.args...))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MCP_TEST_KITS_TEST_ENV_FILE=loaded\n"), 0o600))
	t.Setenv("MCP_TEST_KITS_TEST_ENV_FILE", "")
	require.NoError(t, os.Unsetenv("MCP_TEST_KITS_TEST_ENV_FILE"))

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "loaded", os.Getenv("MCP_TEST_KITS_TEST_ENV_FILE"))

	assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
	assert.NoError(t, loadEnvFile(""))
}
