package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys. Authorization codes, tokens and secrets are never
// recorded, only their identifiers and metadata.
const (
	AttrClientID         = "oauth.client_id"
	AttrScope            = "oauth.scope"
	AttrResource         = "oauth.resource"
	AttrPKCEMethod       = "oauth.pkce.method"
	AttrGrantType        = "oauth.grant_type"
	AttrTokenID          = "oauth.token.jti" //nolint:gosec // identifier, not a credential
	AttrAutoApproved     = "oauth.auto_approved"
	AttrError            = "oauth.error"
	AttrErrorDescription = "oauth.error_description"

	AttrStorageOperation = "storage.operation"
	AttrStorageType      = "storage.type"

	AttrClientIP = "security.client_ip"

	AttrHTTPEndpoint   = "http.endpoint"
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"

	AttrToolName = "mcp.tool.name"
)

// All helpers below accept a nil span.

// RecordError records err on span and marks it failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanSuccess marks span as Ok.
func SetSpanSuccess(span trace.Span) {
	setStatus(span, codes.Ok, "")
}

// SetSpanError marks span failed without recording an error event.
func SetSpanError(span trace.Span, message string) {
	setStatus(span, codes.Error, message)
}

// SetSpanAttributes is span.SetAttributes for a possibly nil span.
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span == nil || len(attrs) == 0 {
		return
	}
	span.SetAttributes(attrs...)
}

// AddOAuthFlowAttributes records the client, scope and resource of a flow
// step, skipping empty values.
func AddOAuthFlowAttributes(span trace.Span, clientID, scope, resource string) {
	SetSpanAttributes(span, nonEmpty(
		AttrClientID, clientID,
		AttrScope, scope,
		AttrResource, resource,
	)...)
}

// AddOAuthErrorAttributes records the OAuth error code returned to the
// client, and its description when set.
func AddOAuthErrorAttributes(span trace.Span, code, description string) {
	SetSpanAttributes(span, attribute.String(AttrError, code))
	SetSpanAttributes(span, nonEmpty(AttrErrorDescription, description)...)
}

// AddStorageAttributes tags a span with the store backend and operation.
func AddStorageAttributes(span trace.Span, operation, storageType string) {
	SetSpanAttributes(span,
		attribute.String(AttrStorageType, storageType),
		attribute.String(AttrStorageOperation, operation),
	)
}

// AddHTTPAttributes tags an endpoint span with the request method, the
// route and the response status.
func AddHTTPAttributes(span trace.Span, method, endpoint string, statusCode int) {
	SetSpanAttributes(span,
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPEndpoint, endpoint),
		attribute.Int(AttrHTTPStatusCode, statusCode),
	)
}

// AddSecurityAttributes attaches the client IP. Callers check
// Instrumentation.ShouldLogClientIPs first.
func AddSecurityAttributes(span trace.Span, clientIP string) {
	SetSpanAttributes(span, nonEmpty(AttrClientIP, clientIP)...)
}

func setStatus(span trace.Span, code codes.Code, message string) {
	if span != nil {
		span.SetStatus(code, message)
	}
}

// nonEmpty turns key, value pairs into string attributes, dropping pairs
// with an empty value.
func nonEmpty(pairs ...string) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] != "" {
			out = append(out, attribute.String(pairs[i], pairs[i+1]))
		}
	}
	return out
}
