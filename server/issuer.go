package server

import (
	"net"
	"net/http"
	"strconv"

	"github.com/midodimori/mcp-test-kits/internal/util"
	"github.com/midodimori/mcp-test-kits/security"
)

// ResolveIssuer returns the configured issuer, or derives scheme://host[:port]
// for r. The scheme comes from the request, host and port from the configured
// listen address, or from the request Host when no port is configured.
func (s *Server) ResolveIssuer(r *http.Request) string {
	if s.Config.Issuer != "" {
		return s.Config.Issuer
	}

	scheme := security.RequestScheme(r, s.Config.TrustProxy)
	if s.Config.Port > 0 {
		return util.OriginURL(scheme, s.Config.Host, s.Config.Port)
	}

	host, portStr, err := net.SplitHostPort(r.Host)
	if err != nil {
		return util.OriginURL(scheme, r.Host, 0)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = 0
	}
	return util.OriginURL(scheme, host, port)
}
