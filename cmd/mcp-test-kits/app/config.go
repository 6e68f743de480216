package app

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/midodimori/mcp-test-kits/internal/mcptools"
	"github.com/midodimori/mcp-test-kits/server"
)

const (
	envPrefix = "MCP_TEST_KITS"

	storageMemory = "memory"
	storageValkey = "valkey"

	logFormatJSON = "json"
	logFormatText = "text"

	transportStdio = "stdio"
	transportHTTP  = "http"
	transportSSE   = "sse"
)

// Configuration keys. Nested keys map to MCP_TEST_KITS_OAUTH_SIGNING_SECRET
// style environment variables.
const (
	keyConfig               = "config"
	keyEnvFile              = "env-file"
	keyTransport            = "transport"
	keyNoTools              = "no-tools"
	keyNoResources          = "no-resources"
	keyNoPrompts            = "no-prompts"
	keyHost                 = "host"
	keyPort                 = "port"
	keyServerName           = "server.name"
	keyServerVersion        = "server.version"
	keyLogLevel             = "log-level"
	keyLogFormat            = "log-format"
	keyOAuthEnabled         = "oauth.enabled"
	keyOAuthAutoApprove     = "oauth.auto-approve"
	keyOAuthIssuer          = "oauth.issuer"
	keyOAuthTokenExpiration = "oauth.token-expiration"
	keyOAuthCodeTTL         = "oauth.authorization-code-ttl"
	keyOAuthSigningSecret   = "oauth.signing-secret" //nolint:gosec // key name, not a credential
	keyOAuthTrustProxy      = "oauth.trust-proxy"
	keyStorage              = "storage"
	keyValkeyAddress        = "valkey.address"
	keyValkeyPassword       = "valkey.password" //nolint:gosec // key name, not a credential
	keyValkeyDB             = "valkey.db"
	keyValkeyKeyPrefix      = "valkey.key-prefix"
	keyCleanupInterval      = "cleanup-interval"
	keyMetricsEnabled       = "metrics.enabled"
	keyTracesEndpoint       = "metrics.traces-endpoint"
	keyTraceClientIPs       = "metrics.trace-client-ips"
)

// Config is the resolved runtime configuration of the serve command.
type Config struct {
	Transport    string
	Capabilities mcptools.Capabilities

	Host string
	Port int

	ServerName    string
	ServerVersion string

	LogLevel  string
	LogFormat string

	OAuth OAuthConfig

	Storage         string
	Valkey          ValkeyConfig
	CleanupInterval time.Duration

	Metrics MetricsConfig
}

// OAuthConfig configures the authorization server and the bearer gate.
type OAuthConfig struct {
	Enabled              bool
	AutoApprove          bool
	Issuer               string
	TokenExpiration      int64
	AuthorizationCodeTTL int64
	SigningSecret        string
	TrustProxy           bool
}

// ValkeyConfig configures the Valkey credential store.
type ValkeyConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// MetricsConfig configures OpenTelemetry export.
type MetricsConfig struct {
	Enabled        bool
	TracesEndpoint string
	TraceClientIPs bool
}

// newViper returns a viper instance with defaults and environment lookup.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyTransport, transportHTTP)
	v.SetDefault(keyNoTools, false)
	v.SetDefault(keyNoResources, false)
	v.SetDefault(keyNoPrompts, false)
	v.SetDefault(keyHost, "127.0.0.1")
	v.SetDefault(keyPort, 3000)
	v.SetDefault(keyServerName, "mcp-test-kits")
	v.SetDefault(keyServerVersion, version)
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFormat, logFormatText)
	v.SetDefault(keyOAuthEnabled, false)
	v.SetDefault(keyOAuthAutoApprove, false)
	v.SetDefault(keyOAuthIssuer, "")
	v.SetDefault(keyOAuthTokenExpiration, 3600)
	v.SetDefault(keyOAuthCodeTTL, 600)
	v.SetDefault(keyOAuthSigningSecret, "")
	v.SetDefault(keyOAuthTrustProxy, false)
	v.SetDefault(keyStorage, storageMemory)
	v.SetDefault(keyValkeyAddress, "localhost:6379")
	v.SetDefault(keyValkeyPassword, "")
	v.SetDefault(keyValkeyDB, 0)
	v.SetDefault(keyValkeyKeyPrefix, "mcp-test-kits:")
	v.SetDefault(keyCleanupInterval, time.Minute)
	v.SetDefault(keyMetricsEnabled, false)
	v.SetDefault(keyTracesEndpoint, "")
	v.SetDefault(keyTraceClientIPs, false)
	return v
}

// addServeFlags registers the serve flags and binds them to their keys.
func addServeFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	flags.StringP("transport", "t", transportHTTP, "MCP transport (stdio, http, sse)")
	flags.Bool("no-tools", false, "Disable the tools capability")
	flags.Bool("no-resources", false, "Disable the resources capability")
	flags.Bool("no-prompts", false, "Disable the prompts capability")
	flags.String("host", "127.0.0.1", "Address to listen on")
	flags.Int("port", 3000, "Port to listen on")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", logFormatText, "Log format (text, json)")
	flags.Bool("oauth", false, "Require OAuth bearer tokens for the MCP endpoint")
	flags.Bool("auto-approve", false, "Issue authorization codes without showing the consent page")
	flags.String("issuer", "", "OAuth issuer URL (default derived from the listen address)")
	flags.Int64("token-expiration", 3600, "Access token lifetime in seconds")
	flags.Int64("authorization-code-ttl", 600, "Authorization code lifetime in seconds")
	flags.String("signing-secret", "", "Secret the token signing key is derived from (required with --oauth)")
	flags.Bool("trust-proxy", false, "Trust X-Forwarded-Proto and X-Forwarded-For")
	flags.String("storage", storageMemory, "Credential store (memory, valkey)")
	flags.String("valkey-address", "localhost:6379", "Valkey server address")
	flags.Int("valkey-db", 0, "Valkey database number")
	flags.String("valkey-key-prefix", "mcp-test-kits:", "Prefix for Valkey keys")
	flags.Duration("cleanup-interval", time.Minute, "How often the memory store drops expired entries")
	flags.Bool("metrics", false, "Enable OpenTelemetry metrics at /metrics")
	flags.String("traces-endpoint", "", "OTLP/HTTP endpoint for trace export")
	flags.Bool("trace-client-ips", false, "Attach client IP addresses to OAuth endpoint spans")

	bindings := map[string]string{
		keyTransport:            "transport",
		keyNoTools:              "no-tools",
		keyNoResources:          "no-resources",
		keyNoPrompts:            "no-prompts",
		keyHost:                 "host",
		keyPort:                 "port",
		keyLogLevel:             "log-level",
		keyLogFormat:            "log-format",
		keyOAuthEnabled:         "oauth",
		keyOAuthAutoApprove:     "auto-approve",
		keyOAuthIssuer:          "issuer",
		keyOAuthTokenExpiration: "token-expiration",
		keyOAuthCodeTTL:         "authorization-code-ttl",
		keyOAuthSigningSecret:   "signing-secret",
		keyOAuthTrustProxy:      "trust-proxy",
		keyStorage:              "storage",
		keyValkeyAddress:        "valkey-address",
		keyValkeyDB:             "valkey-db",
		keyValkeyKeyPrefix:      "valkey-key-prefix",
		keyCleanupInterval:      "cleanup-interval",
		keyMetricsEnabled:       "metrics",
		keyTracesEndpoint:       "traces-endpoint",
		keyTraceClientIPs:       "trace-client-ips",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind %s flag: %w", flag, err)
		}
	}
	return nil
}

// loadConfig resolves the configuration from flags, environment and the
// optional config file, in that order of precedence.
func loadConfig(v *viper.Viper) (*Config, error) {
	if path := v.GetString(keyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Transport: strings.ToLower(v.GetString(keyTransport)),
		Capabilities: mcptools.Capabilities{
			Tools:     !v.GetBool(keyNoTools),
			Resources: !v.GetBool(keyNoResources),
			Prompts:   !v.GetBool(keyNoPrompts),
		},
		Host:          v.GetString(keyHost),
		Port:          v.GetInt(keyPort),
		ServerName:    v.GetString(keyServerName),
		ServerVersion: v.GetString(keyServerVersion),
		LogLevel:      v.GetString(keyLogLevel),
		LogFormat:     v.GetString(keyLogFormat),
		OAuth: OAuthConfig{
			Enabled:              v.GetBool(keyOAuthEnabled),
			AutoApprove:          v.GetBool(keyOAuthAutoApprove),
			Issuer:               v.GetString(keyOAuthIssuer),
			TokenExpiration:      v.GetInt64(keyOAuthTokenExpiration),
			AuthorizationCodeTTL: v.GetInt64(keyOAuthCodeTTL),
			SigningSecret:        v.GetString(keyOAuthSigningSecret),
			TrustProxy:           v.GetBool(keyOAuthTrustProxy),
		},
		Storage: strings.ToLower(v.GetString(keyStorage)),
		Valkey: ValkeyConfig{
			Address:   v.GetString(keyValkeyAddress),
			Password:  v.GetString(keyValkeyPassword),
			DB:        v.GetInt(keyValkeyDB),
			KeyPrefix: v.GetString(keyValkeyKeyPrefix),
		},
		CleanupInterval: v.GetDuration(keyCleanupInterval),
		Metrics: MetricsConfig{
			Enabled:        v.GetBool(keyMetricsEnabled),
			TracesEndpoint: v.GetString(keyTracesEndpoint),
			TraceClientIPs: v.GetBool(keyTraceClientIPs),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Transport {
	case transportStdio, transportHTTP, transportSSE:
	default:
		return fmt.Errorf("invalid transport %q: expected %s, %s or %s", c.Transport, transportStdio, transportHTTP, transportSSE)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case logFormatJSON, logFormatText:
	default:
		return fmt.Errorf("invalid log format %q: expected %s or %s", c.LogFormat, logFormatText, logFormatJSON)
	}
	switch c.Storage {
	case storageMemory:
	case storageValkey:
		if c.Valkey.Address == "" {
			return errors.New("valkey address is required when storage is valkey")
		}
	default:
		return fmt.Errorf("invalid storage %q: expected %s or %s", c.Storage, storageMemory, storageValkey)
	}

	if !c.OAuth.Enabled {
		return nil
	}
	if c.Transport == transportStdio {
		return errors.New("OAuth requires the http or sse transport")
	}
	if c.OAuth.SigningSecret == "" {
		return errors.New("a signing secret is required when OAuth is enabled (--signing-secret or MCP_TEST_KITS_OAUTH_SIGNING_SECRET)")
	}
	if err := c.ServerConfig().Validate(); err != nil {
		return fmt.Errorf("invalid OAuth config: %w", err)
	}
	return nil
}

// ServerConfig maps the OAuth settings onto the flow controller's config.
func (c *Config) ServerConfig() *server.Config {
	return &server.Config{
		Issuer:               c.OAuth.Issuer,
		Host:                 c.Host,
		Port:                 c.Port,
		AutoApprove:          c.OAuth.AutoApprove,
		AccessTokenTTL:       c.OAuth.TokenExpiration,
		AuthorizationCodeTTL: c.OAuth.AuthorizationCodeTTL,
		TrustProxy:           c.OAuth.TrustProxy,
	}
}

func parseLogLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}
