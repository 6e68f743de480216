package oauth

import (
	"log/slog"

	"github.com/midodimori/mcp-test-kits/security"
	"github.com/midodimori/mcp-test-kits/server"
	"github.com/midodimori/mcp-test-kits/storage"
)

// Server is the authorization flow controller. See package server.
type Server = server.Server

// ServerConfig holds OAuth server configuration. See server.Config.
type ServerConfig = server.Config

// NewServer creates a new OAuth server from its stores, the token codec and
// config. A single backend such as *memory.Store may be passed for all three
// stores.
func NewServer(
	codeStore storage.CodeStore,
	tokenStore storage.TokenStore,
	clientStore storage.ClientStore,
	codec *security.TokenCodec,
	config *ServerConfig,
	logger *slog.Logger,
) (*Server, error) {
	return server.New(codeStore, tokenStore, clientStore, codec, config, logger)
}
