package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/midodimori/mcp-test-kits/instrumentation"
	"github.com/midodimori/mcp-test-kits/security"
	"github.com/midodimori/mcp-test-kits/server"
)

const (
	tokenTypeBearer = "Bearer"

	// maxRegistrationBodySize bounds the JSON body of /oauth/register.
	maxRegistrationBodySize = 64 << 10

	actionApprove = "approve"
	actionDeny    = "deny"
)

// Handler is a thin HTTP adapter for the OAuth Server.
// It handles HTTP requests and delegates to the Server for business logic.
type Handler struct {
	server *Server
	logger *slog.Logger
	tracer trace.Tracer // OpenTelemetry tracer for HTTP layer
}

// NewHandler creates a new HTTP handler
func NewHandler(server *Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server: server,
		logger: logger,
	}

	// Initialize tracer if instrumentation is enabled
	if inst := server.Instrumentation(); inst != nil {
		h.tracer = inst.Tracer("http")
	}

	return h
}

// Server returns the flow controller behind the handler.
func (h *Handler) Server() *Server {
	return h.server
}

// ServeAuthorization handles GET and POST /oauth/authorize. GET validates the
// request and either auto-approves it or renders the consent page; POST
// carries the consent decision.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.serveAuthorizationRequest(w, r)
	case http.MethodPost:
		h.serveAuthorizationDecision(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) serveAuthorizationRequest(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r, "oauth.http.authorization")
	defer span.End()

	logger := security.LoggerFromContext(ctx, h.logger)
	issuer := h.server.ResolveIssuer(r)

	req, flowErr := server.ValidateAuthorizationRequest(r.URL.Query())
	if flowErr != nil {
		logger.Debug("Rejected authorization request", "client_id", req.ClientID, "error", flowErr.Error())
		instrumentation.AddOAuthErrorAttributes(span, flowErr.Code, flowErr.Description)
		status := h.writeAuthorizationError(w, r, issuer, req, flowErr)
		h.recordHTTPMetrics(ctx, "authorization", http.MethodGet, status, startTime)
		return
	}

	autoApprove := h.server.Config.AutoApprove
	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, req.Scope, req.Resource)
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrPKCEMethod, req.CodeChallengeMethod),
		attribute.Bool(instrumentation.AttrAutoApproved, autoApprove),
	)
	if m := h.metrics(); m != nil {
		m.RecordAuthorizationStarted(ctx, req.ClientID, autoApprove)
	}

	if autoApprove {
		redirectURL, err := h.server.ApproveAuthorization(ctx, req)
		if err != nil {
			instrumentation.RecordError(span, err)
			status := h.writeAuthorizationError(w, r, issuer, req, asFlowError(err))
			h.recordHTTPMetrics(ctx, "authorization", http.MethodGet, status, startTime)
			return
		}
		security.SetSecurityHeaders(w, issuer)
		http.Redirect(w, r, redirectURL, http.StatusFound)
		instrumentation.SetSpanSuccess(span)
		h.recordHTTPMetrics(ctx, "authorization", http.MethodGet, http.StatusFound, startTime)
		return
	}

	if err := renderConsentPage(w, issuer, req); err != nil {
		logger.Error("Failed to render consent page", "error", err)
		instrumentation.RecordError(span, err)
	}
	instrumentation.SetSpanSuccess(span)
	h.recordHTTPMetrics(ctx, "authorization", http.MethodGet, http.StatusOK, startTime)
}

func (h *Handler) serveAuthorizationDecision(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r, "oauth.http.authorization_decision")
	defer span.End()

	issuer := h.server.ResolveIssuer(r)
	if err := r.ParseForm(); err != nil {
		security.SetSecurityHeaders(w, issuer)
		http.Error(w, "Invalid request", http.StatusBadRequest)
		h.recordHTTPMetrics(ctx, "authorization", http.MethodPost, http.StatusBadRequest, startTime)
		return
	}

	req := server.ParseAuthorizationRequest(r.PostForm)
	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, req.Scope, req.Resource)

	var status int
	switch r.PostForm.Get("action") {
	case actionDeny:
		if req.RedirectURI == "" {
			status = writePlainAuthorizationError(w, issuer, ErrorCodeAccessDenied)
			break
		}
		security.SetSecurityHeaders(w, issuer)
		http.Redirect(w, r, h.server.DenyAuthorization(ctx, req), http.StatusFound)
		status = http.StatusFound

	case actionApprove:
		redirectURL, err := h.server.ApproveAuthorization(ctx, req)
		if err != nil {
			instrumentation.RecordError(span, err)
			status = h.writeAuthorizationError(w, r, issuer, req, asFlowError(err))
			break
		}
		security.SetSecurityHeaders(w, issuer)
		http.Redirect(w, r, redirectURL, http.StatusFound)
		status = http.StatusFound

	default:
		security.SetSecurityHeaders(w, issuer)
		http.Error(w, "Invalid action", http.StatusBadRequest)
		status = http.StatusBadRequest
	}

	if status == http.StatusFound {
		instrumentation.SetSpanSuccess(span)
	}
	h.recordHTTPMetrics(ctx, "authorization", http.MethodPost, status, startTime)
}

// writeAuthorizationError redirects the error to the client's redirect_uri,
// or answers 400 with a plain text body when there is nowhere to redirect.
// It returns the status written.
func (h *Handler) writeAuthorizationError(w http.ResponseWriter, r *http.Request, issuer string, req *server.AuthorizationRequest, flowErr *server.Error) int {
	if req == nil || req.RedirectURI == "" {
		return writePlainAuthorizationError(w, issuer, flowErr.Error())
	}
	security.SetSecurityHeaders(w, issuer)
	http.Redirect(w, r, server.ErrorRedirect(req.RedirectURI, req.State, flowErr), http.StatusFound)
	return http.StatusFound
}

func writePlainAuthorizationError(w http.ResponseWriter, issuer, message string) int {
	security.SetSecurityHeaders(w, issuer)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte("Error: " + message))
	return http.StatusBadRequest
}

// asFlowError unwraps a *server.Error, mapping anything else to server_error.
func asFlowError(err error) *server.Error {
	var flowErr *server.Error
	if errors.As(err, &flowErr) {
		return flowErr
	}
	return &server.Error{Code: server.ErrorCodeServerError, Status: http.StatusInternalServerError}
}

// ServeToken handles the OAuth token endpoint
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r, "oauth.http.token_exchange")
	defer span.End()

	if r.Method != http.MethodPost {
		h.recordHTTPMetrics(ctx, "token", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	issuer := h.server.ResolveIssuer(r)

	if err := r.ParseForm(); err != nil {
		h.recordHTTPMetrics(ctx, "token", http.MethodPost, http.StatusBadRequest, startTime)
		instrumentation.SetSpanError(span, "parse form failed")
		h.writeError(w, issuer, ErrInvalidRequest("Failed to parse request"))
		return
	}

	req := &server.TokenRequest{
		GrantType:    r.PostForm.Get("grant_type"),
		Code:         r.PostForm.Get("code"),
		ClientID:     r.PostForm.Get("client_id"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		CodeVerifier: r.PostForm.Get("code_verifier"),
	}
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrGrantType, req.GrantType),
		attribute.String(instrumentation.AttrClientID, req.ClientID),
	)

	result, err := h.server.ExchangeAuthorizationCode(ctx, req, issuer)
	if err != nil {
		oauthErr := AsOAuthError(err)
		security.LoggerFromContext(ctx, h.logger).Info("Token exchange failed",
			"client_id", req.ClientID,
			"error", oauthErr.Code)
		h.recordHTTPMetrics(ctx, "token", http.MethodPost, oauthErr.Status, startTime)
		instrumentation.SetSpanError(span, oauthErr.Code)
		h.writeError(w, issuer, oauthErr)
		return
	}

	h.recordHTTPMetrics(ctx, "token", http.MethodPost, http.StatusOK, startTime)
	instrumentation.SetSpanSuccess(span)

	h.writeJSON(w, issuer, http.StatusOK, TokenResponse{
		AccessToken: result.AccessToken,
		TokenType:   result.TokenType,
		ExpiresIn:   result.ExpiresIn,
		Scope:       result.Scope,
	})
}

// ServeTokenRevocation handles the RFC 7009 token revocation endpoint. It
// answers 200 with an empty body whatever the token was.
func (h *Handler) ServeTokenRevocation(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r, "oauth.http.token_revocation")
	defer span.End()

	if r.Method != http.MethodPost {
		h.recordHTTPMetrics(ctx, "revoke", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	issuer := h.server.ResolveIssuer(r)

	// A malformed body revokes nothing but still succeeds.
	if err := r.ParseForm(); err == nil {
		if err := h.server.RevokeToken(ctx, r.PostForm.Get("token")); err != nil {
			security.LoggerFromContext(ctx, h.logger).Error("Failed to revoke token", "error", err)
			instrumentation.RecordError(span, err)
		}
	}

	h.recordHTTPMetrics(ctx, "revoke", http.MethodPost, http.StatusOK, startTime)
	instrumentation.SetSpanSuccess(span)

	security.SetSecurityHeaders(w, issuer)
	w.WriteHeader(http.StatusOK)
}

// ServeClientRegistration handles dynamic client registration (RFC 7591)
func (h *Handler) ServeClientRegistration(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r, "oauth.http.client_registration")
	defer span.End()

	if r.Method != http.MethodPost {
		h.recordHTTPMetrics(ctx, "register", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	issuer := h.server.ResolveIssuer(r)

	var reg server.ClientRegistration
	if oauthErr := decodeRegistration(http.MaxBytesReader(w, r.Body, maxRegistrationBodySize), &reg); oauthErr != nil {
		h.recordHTTPMetrics(ctx, "register", http.MethodPost, oauthErr.Status, startTime)
		instrumentation.AddOAuthErrorAttributes(span, oauthErr.Code, oauthErr.Description)
		h.writeError(w, issuer, oauthErr)
		return
	}

	client, err := h.server.RegisterClient(ctx, &reg)
	if err != nil {
		oauthErr := AsOAuthError(err)
		h.recordHTTPMetrics(ctx, "register", http.MethodPost, oauthErr.Status, startTime)
		instrumentation.SetSpanError(span, oauthErr.Code)
		h.writeError(w, issuer, oauthErr)
		return
	}

	h.recordHTTPMetrics(ctx, "register", http.MethodPost, http.StatusCreated, startTime)
	instrumentation.SetSpanSuccess(span)

	h.writeJSON(w, issuer, http.StatusCreated, ClientRegistrationResponse{
		ClientID:                client.ClientID,
		ClientName:              client.ClientName,
		RedirectURIs:            client.RedirectURIs,
		GrantTypes:              client.GrantTypes,
		ResponseTypes:           client.ResponseTypes,
		TokenEndpointAuthMethod: client.TokenEndpointAuthMethod,
		ClientIDIssuedAt:        client.ClientIDIssuedAt.Unix(),
	})
}

// decodeRegistration reads a registration body. A field of the wrong JSON
// type is reported with the same message as a missing one, except for a
// non-string entry in redirect_uris, which is an invalid redirect URI.
func decodeRegistration(body io.Reader, reg *server.ClientRegistration) *OAuthError {
	data, err := io.ReadAll(body)
	if err != nil {
		return ErrInvalidRequest("Invalid JSON body")
	}
	err = json.Unmarshal(data, reg)
	if err == nil {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		switch {
		case typeErr.Field == "client_name":
			return ErrInvalidRequest("Missing or invalid client_name")
		case strings.HasPrefix(typeErr.Field, "redirect_uris"):
			if entry, ok := nonStringRedirectURI(data); ok {
				return ErrInvalidRedirectURI("Invalid redirect URI: " + entry)
			}
			return ErrInvalidRequest("Missing or invalid redirect_uris")
		case strings.HasPrefix(typeErr.Field, "grant_types"):
			return ErrInvalidRequest("Only authorization_code grant type supported")
		case strings.HasPrefix(typeErr.Field, "response_types"):
			return ErrInvalidRequest("Only code response type supported")
		}
	}
	return ErrInvalidRequest("Invalid JSON body")
}

// nonStringRedirectURI returns the raw JSON of the first redirect_uris entry
// that is not a string. ok is false when redirect_uris is not an array.
func nonStringRedirectURI(data []byte) (string, bool) {
	var raw struct {
		RedirectURIs []json.RawMessage `json:"redirect_uris"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", false
	}
	for _, entry := range raw.RedirectURIs {
		if len(entry) > 0 && entry[0] != '"' {
			return string(entry), true
		}
	}
	return "", false
}

func (h *Handler) writeJSON(w http.ResponseWriter, issuer string, status int, body any) {
	security.SetSecurityHeaders(w, issuer)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Debug("Failed to write response", "error", err)
	}
}

// writeError writes an OAuth error body. error_description is omitted when empty.
func (h *Handler) writeError(w http.ResponseWriter, issuer string, oauthErr *OAuthError) {
	h.writeJSON(w, issuer, oauthErr.Status, ErrorResponse{
		Error:            oauthErr.Code,
		ErrorDescription: oauthErr.Description,
	})
}

func (h *Handler) startSpan(r *http.Request, name string) (context.Context, trace.Span) {
	ctx := r.Context()
	if h.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	ctx, span := h.tracer.Start(ctx, name)
	if inst := h.server.Instrumentation(); inst != nil && inst.ShouldLogClientIPs() {
		instrumentation.AddSecurityAttributes(span, security.ClientIP(r, h.server.Config.TrustProxy))
	}
	return ctx, span
}

// metrics returns the metrics holder, or nil when instrumentation is off.
func (h *Handler) metrics() *instrumentation.Metrics {
	if inst := h.server.Instrumentation(); inst != nil {
		return inst.Metrics()
	}
	return nil
}

func (h *Handler) recordHTTPMetrics(ctx context.Context, endpoint, method string, status int, startTime time.Time) {
	instrumentation.AddHTTPAttributes(trace.SpanFromContext(ctx), method, endpoint, status)
	m := h.metrics()
	if m == nil {
		return
	}
	duration := time.Since(startTime).Seconds() * 1000 // convert to milliseconds
	m.RecordHTTPRequest(ctx, method, endpoint, status, duration)
}
