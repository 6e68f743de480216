package server

import "net/http"

// OAuth 2.0 error codes. The root package re-exports them.
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeInvalidRedirectURI      = "invalid_redirect_uri"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeServerError             = "server_error"
)

// Error is a protocol error returned by the state machine. Code is the OAuth
// error code, Description the optional error_description and Status the HTTP
// status the caller should answer with.
type Error struct {
	Code        string
	Description string
	Status      int
}

// Error implements the error interface as "code" or "code: description".
func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

func newError(code, description string, status int) *Error {
	return &Error{Code: code, Description: description, Status: status}
}

func errInvalidRequest(description string) *Error {
	return newError(ErrorCodeInvalidRequest, description, http.StatusBadRequest)
}

func errInvalidGrant(description string) *Error {
	return newError(ErrorCodeInvalidGrant, description, http.StatusBadRequest)
}

func errServer(description string) *Error {
	return newError(ErrorCodeServerError, description, http.StatusInternalServerError)
}
