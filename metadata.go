package oauth

import (
	"net/http"
	"time"

	"github.com/midodimori/mcp-test-kits/internal/util"
	"github.com/midodimori/mcp-test-kits/security"
)

// ServeProtectedResourceMetadata serves RFC 9728 Protected Resource Metadata.
// The issuer doubles as the resource identifier.
func (h *Handler) ServeProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	issuer := h.server.ResolveIssuer(r)
	h.writeJSON(w, issuer, http.StatusOK, h.protectedResourceMetadata(issuer))
	h.recordHTTPMetrics(r.Context(), "protected_resource_metadata", http.MethodGet, http.StatusOK, startTime)
}

// ServeAuthorizationServerMetadata serves RFC 8414 Authorization Server Metadata
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	issuer := h.server.ResolveIssuer(r)
	h.writeJSON(w, issuer, http.StatusOK, h.authorizationServerMetadata(issuer))
	h.recordHTTPMetrics(r.Context(), "authorization_server_metadata", http.MethodGet, http.StatusOK, startTime)
}

func (h *Handler) protectedResourceMetadata(issuer string) ProtectedResourceMetadata {
	return ProtectedResourceMetadata{
		Resource:               issuer,
		AuthorizationServers:   []string{issuer},
		BearerMethodsSupported: []string{"header"},
		ResourceDocumentation:  endpointURL(issuer, "/docs"),
		ScopesSupported:        h.server.Config.SupportedScopes,
	}
}

func (h *Handler) authorizationServerMetadata(issuer string) AuthorizationServerMetadata {
	return AuthorizationServerMetadata{
		Issuer:                            issuer,
		AuthorizationEndpoint:             endpointURL(issuer, PathAuthorize),
		TokenEndpoint:                     endpointURL(issuer, PathToken),
		RevocationEndpoint:                endpointURL(issuer, PathRevoke),
		RegistrationEndpoint:              endpointURL(issuer, PathRegister),
		ScopesSupported:                   h.server.Config.SupportedScopes,
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code"},
		TokenEndpointAuthMethodsSupported: []string{"none"},
		CodeChallengeMethodsSupported:     []string{security.PKCEMethodS256},
		ClientIDMetadataDocumentSupported: true,
	}
}

// endpointURL joins an issuer and an absolute path without doubling the slash.
func endpointURL(issuer, path string) string {
	return util.NormalizeURL(issuer) + path
}
