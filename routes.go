package oauth

import "net/http"

// Endpoint paths.
const (
	PathAuthorize                   = "/oauth/authorize"
	PathToken                       = "/oauth/token"
	PathRevoke                      = "/oauth/revoke"
	PathRegister                    = "/oauth/register"
	PathProtectedResourceMetadata   = "/.well-known/oauth-protected-resource"
	PathAuthorizationServerMetadata = "/.well-known/oauth-authorization-server"
)

// Mux is the routing surface RegisterRoutes needs. *http.ServeMux and
// chi.Router both satisfy it.
type Mux interface {
	Handle(pattern string, handler http.Handler)
}

// RegisterRoutes mounts the OAuth and discovery endpoints on mux. Method
// checks happen in the handlers.
func (h *Handler) RegisterRoutes(mux Mux) {
	mux.Handle(PathAuthorize, http.HandlerFunc(h.ServeAuthorization))
	mux.Handle(PathToken, http.HandlerFunc(h.ServeToken))
	mux.Handle(PathRevoke, http.HandlerFunc(h.ServeTokenRevocation))
	mux.Handle(PathRegister, http.HandlerFunc(h.ServeClientRegistration))
	mux.Handle(PathProtectedResourceMetadata, http.HandlerFunc(h.ServeProtectedResourceMetadata))
	mux.Handle(PathAuthorizationServerMetadata, http.HandlerFunc(h.ServeAuthorizationServerMetadata))
}
