package server

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/midodimori/mcp-test-kits/instrumentation"
	"github.com/midodimori/mcp-test-kits/storage"
)

// Registration defaults (RFC 7591 section 2).
const (
	DefaultResponseType            = "code"
	DefaultTokenEndpointAuthMethod = "none"
)

// ClientRegistration is an RFC 7591 registration request. A nil slice means
// the field was omitted and gets its default; an explicit list must contain
// the supported value.
type ClientRegistration struct {
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
}

// RegisterClient validates reg, assigns a fresh client ID and stores the
// client. Validation failures are returned as *Error.
func (s *Server) RegisterClient(ctx context.Context, reg *ClientRegistration) (*storage.Client, error) {
	ctx, span := s.startSpan(ctx, "oauth.server.register_client")
	defer span.End()

	if oauthErr := validateClientRegistration(reg); oauthErr != nil {
		instrumentation.AddOAuthErrorAttributes(span, oauthErr.Code, oauthErr.Description)
		return nil, oauthErr
	}

	grantTypes := reg.GrantTypes
	if grantTypes == nil {
		grantTypes = []string{GrantTypeAuthorizationCode}
	}
	responseTypes := reg.ResponseTypes
	if responseTypes == nil {
		responseTypes = []string{DefaultResponseType}
	}
	authMethod := reg.TokenEndpointAuthMethod
	if authMethod == "" {
		authMethod = DefaultTokenEndpointAuthMethod
	}

	client := &storage.Client{
		ClientID:                newClientID(),
		ClientName:              reg.ClientName,
		RedirectURIs:            append([]string(nil), reg.RedirectURIs...),
		GrantTypes:              append([]string(nil), grantTypes...),
		ResponseTypes:           append([]string(nil), responseTypes...),
		TokenEndpointAuthMethod: authMethod,
		ClientIDIssuedAt:        s.now(),
	}

	if err := s.clientStore.SaveClient(ctx, client); err != nil {
		instrumentation.RecordError(span, err)
		s.Logger.Error("Failed to save client", "error", err)
		return nil, errServer("Failed to register client")
	}

	if m := s.metrics(); m != nil {
		m.RecordClientRegistration(ctx, authMethod)
	}
	instrumentation.AddOAuthFlowAttributes(span, client.ClientID, "", "")
	instrumentation.SetSpanSuccess(span)

	s.Logger.Info("Registered client",
		"client_id", client.ClientID,
		"client_name", client.ClientName,
		"redirect_uris", len(client.RedirectURIs))

	return client, nil
}

// GetClient returns a registered client.
func (s *Server) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	return s.clientStore.GetClient(ctx, clientID)
}

func validateClientRegistration(reg *ClientRegistration) *Error {
	if reg == nil || reg.ClientName == "" {
		return errInvalidRequest("Missing or invalid client_name")
	}
	if len(reg.RedirectURIs) == 0 {
		return errInvalidRequest("Missing or invalid redirect_uris")
	}
	for _, uri := range reg.RedirectURIs {
		if !isHTTPRedirectURI(uri) {
			return newError(ErrorCodeInvalidRedirectURI, "Invalid redirect URI: "+uri, http.StatusBadRequest)
		}
	}
	if reg.GrantTypes != nil && !onlyValue(reg.GrantTypes, GrantTypeAuthorizationCode) {
		return errInvalidRequest("Only authorization_code grant type supported")
	}
	if reg.ResponseTypes != nil && !onlyValue(reg.ResponseTypes, DefaultResponseType) {
		return errInvalidRequest("Only code response type supported")
	}
	return nil
}

// onlyValue reports whether list is non-empty and every entry equals want.
func onlyValue(list []string, want string) bool {
	return len(list) > 0 && !slices.ContainsFunc(list, func(v string) bool { return v != want })
}

// isHTTPRedirectURI accepts absolute http and https URIs with a host.
func isHTTPRedirectURI(uri string) bool {
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		return false
	}
	u, err := url.Parse(uri)
	return err == nil && u.Host != ""
}

// newClientID returns 32 lowercase hex characters from a random UUID.
func newClientID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
