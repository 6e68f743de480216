package server

import (
	"net/http"
	"net/url"

	"github.com/midodimori/mcp-test-kits/security"
)

// AuthorizationRequest holds the parameters of /oauth/authorize that must
// round-trip through the consent step.
type AuthorizationRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	Resource            string
	State               string
}

// Values encodes the request as form values, the inverse of
// ParseAuthorizationRequest.
func (r *AuthorizationRequest) Values() url.Values {
	v := url.Values{}
	v.Set("client_id", r.ClientID)
	v.Set("redirect_uri", r.RedirectURI)
	v.Set("response_type", r.ResponseType)
	v.Set("scope", r.Scope)
	v.Set("code_challenge", r.CodeChallenge)
	v.Set("code_challenge_method", r.CodeChallengeMethod)
	v.Set("resource", r.Resource)
	if r.State != "" {
		v.Set("state", r.State)
	}
	return v
}

// ParseAuthorizationRequest reads the authorization parameters from query or
// form values without validating them.
func ParseAuthorizationRequest(params url.Values) *AuthorizationRequest {
	return &AuthorizationRequest{
		ClientID:            params.Get("client_id"),
		RedirectURI:         params.Get("redirect_uri"),
		ResponseType:        params.Get("response_type"),
		Scope:               params.Get("scope"),
		CodeChallenge:       params.Get("code_challenge"),
		CodeChallengeMethod: params.Get("code_challenge_method"),
		Resource:            params.Get("resource"),
		State:               params.Get("state"),
	}
}

// ValidateAuthorizationRequest parses params and reports the first violation.
// Missing parameters are checked first in a fixed order, then response_type,
// then the challenge method. The parsed request is returned even on failure so
// the caller can still redirect with the echoed state.
func ValidateAuthorizationRequest(params url.Values) (*AuthorizationRequest, *Error) {
	req := ParseAuthorizationRequest(params)
	return req, req.Validate()
}

// Validate reports the first violation, or nil.
func (r *AuthorizationRequest) Validate() *Error {
	required := []struct {
		name  string
		value string
	}{
		{"client_id", r.ClientID},
		{"redirect_uri", r.RedirectURI},
		{"response_type", r.ResponseType},
		{"scope", r.Scope},
		{"code_challenge", r.CodeChallenge},
		{"code_challenge_method", r.CodeChallengeMethod},
		{"resource", r.Resource},
	}
	for _, p := range required {
		if p.value == "" {
			return errInvalidRequest("Missing " + p.name)
		}
	}

	if r.ResponseType != "code" {
		return newError(ErrorCodeUnsupportedResponseType, "", http.StatusBadRequest)
	}
	if r.CodeChallengeMethod != security.PKCEMethodS256 {
		return errInvalidRequest("Only S256 code_challenge_method supported")
	}
	return nil
}

// AuthorizationRedirect appends params to redirectURI, keeping any query it
// already carries.
func AuthorizationRedirect(redirectURI string, params url.Values) string {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return redirectURI + "?" + params.Encode()
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ErrorRedirect builds the redirect for a failed or denied authorization:
// error, optional error_description and the echoed state.
func ErrorRedirect(redirectURI, state string, e *Error) string {
	params := url.Values{}
	params.Set("error", e.Code)
	if e.Description != "" {
		params.Set("error_description", e.Description)
	}
	if state != "" {
		params.Set("state", state)
	}
	return AuthorizationRedirect(redirectURI, params)
}
