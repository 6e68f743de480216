package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments
type Metrics struct {
	// HTTP
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Authorization flow
	AuthorizationStarted metric.Int64Counter
	AuthorizationDecided metric.Int64Counter
	CodeExchanged        metric.Int64Counter
	CodeExchangeFailed   metric.Int64Counter
	TokenRevoked         metric.Int64Counter
	ClientRegistered     metric.Int64Counter

	// Bearer gate
	TokenValidations metric.Int64Counter

	// Security
	PKCEValidationFailed metric.Int64Counter
	CodeReplayDetected   metric.Int64Counter

	// Storage
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
	StorageCodesCount        metric.Int64ObservableGauge
	StorageTokenRecordsCount metric.Int64ObservableGauge
	StorageRevokedCount      metric.Int64ObservableGauge
	StorageClientsCount      metric.Int64ObservableGauge

	// Protected API
	ToolCalls metric.Int64Counter
}

type counterSpec struct {
	dst   *metric.Int64Counter
	meter metric.Meter
	name  string
	desc  string
	unit  string
}

func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	httpMeter := inst.Meter("http")
	serverMeter := inst.Meter("server")
	securityMeter := inst.Meter("security")
	storageMeter := inst.Meter("storage")
	apiMeter := inst.Meter("mcp")

	counters := []counterSpec{
		{&m.HTTPRequestsTotal, httpMeter, "oauth.http.requests.total", "Total number of HTTP requests", "{request}"},
		{&m.AuthorizationStarted, serverMeter, "oauth.authorization.started", "Number of authorization requests accepted for consent", "{flow}"},
		{&m.AuthorizationDecided, serverMeter, "oauth.authorization.decided", "Number of consent decisions", "{decision}"},
		{&m.CodeExchanged, serverMeter, "oauth.code.exchanged", "Number of authorization codes exchanged for tokens", "{exchange}"},
		{&m.CodeExchangeFailed, serverMeter, "oauth.code.exchange_failed", "Number of rejected token requests", "{failure}"},
		{&m.TokenRevoked, serverMeter, "oauth.token.revoked", "Number of revocation requests", "{revocation}"},
		{&m.ClientRegistered, serverMeter, "oauth.client.registered", "Number of clients registered", "{client}"},
		{&m.TokenValidations, serverMeter, "oauth.token.validations", "Number of bearer token checks", "{validation}"},
		{&m.PKCEValidationFailed, securityMeter, "oauth.pkce.validation_failed", "Number of PKCE validation failures", "{failure}"},
		{&m.CodeReplayDetected, securityMeter, "oauth.code.replay_detected", "Number of authorization code replays", "{attempt}"},
		{&m.StorageOperationTotal, storageMeter, "storage.operation.total", "Total number of storage operations", "{operation}"},
		{&m.ToolCalls, apiMeter, "mcp.tool.calls", "Number of MCP tool calls", "{call}"},
	}
	for _, c := range counters {
		counter, err := c.meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}

	var err error
	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"oauth.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.request.duration histogram: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	gauges := []struct {
		dst  *metric.Int64ObservableGauge
		name string
		desc string
	}{
		{&m.StorageCodesCount, "storage.codes.count", "Pending authorization codes"},
		{&m.StorageTokenRecordsCount, "storage.token_records.count", "Tracked access token records"},
		{&m.StorageRevokedCount, "storage.revoked.count", "Revoked token identifiers"},
		{&m.StorageClientsCount, "storage.clients.count", "Registered clients"},
	}
	for _, g := range gauges {
		gauge, err := storageMeter.Int64ObservableGauge(g.name, metric.WithDescription(g.desc), metric.WithUnit("{entry}"))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s gauge: %w", g.name, err)
		}
		*g.dst = gauge
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordAuthorizationStarted records an authorization request that passed validation.
func (m *Metrics) RecordAuthorizationStarted(ctx context.Context, clientID string, autoApproved bool) {
	m.AuthorizationStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Bool("auto_approved", autoApproved),
	))
}

// RecordAuthorizationDecision records an approve or deny decision.
func (m *Metrics) RecordAuthorizationDecision(ctx context.Context, clientID string, approved bool) {
	m.AuthorizationDecided.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Bool("approved", approved),
	))
}

// RecordCodeExchange records an authorization code exchange
func (m *Metrics) RecordCodeExchange(ctx context.Context, clientID, pkceMethod string) {
	m.CodeExchanged.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("pkce_method", pkceMethod),
	))
}

// RecordCodeExchangeFailed records a rejected token request by OAuth error code.
func (m *Metrics) RecordCodeExchangeFailed(ctx context.Context, errorCode string) {
	m.CodeExchangeFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error", errorCode),
	))
}

// RecordTokenRevocation records a revocation request. decoded is false when
// the presented token could not be parsed.
func (m *Metrics) RecordTokenRevocation(ctx context.Context, decoded bool) {
	m.TokenRevoked.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("decoded", decoded),
	))
}

// RecordClientRegistration records a client registration
func (m *Metrics) RecordClientRegistration(ctx context.Context, authMethod string) {
	m.ClientRegistered.Add(ctx, 1, metric.WithAttributes(
		attribute.String("token_endpoint_auth_method", authMethod),
	))
}

// RecordTokenValidation records a bearer gate decision: "valid", "missing",
// "invalid" or "revoked".
func (m *Metrics) RecordTokenValidation(ctx context.Context, result string) {
	m.TokenValidations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}

// RecordPKCEValidationFailed records a PKCE validation failure
func (m *Metrics) RecordPKCEValidationFailed(ctx context.Context, method string) {
	m.PKCEValidationFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
	))
}

// RecordCodeReplayDetected records an exchange that lost the race to consume a code.
func (m *Metrics) RecordCodeReplayDetected(ctx context.Context) {
	m.CodeReplayDetected.Add(ctx, 1)
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordToolCall records an MCP tool invocation. result is "success",
// "error" or "forbidden".
func (m *Metrics) RecordToolCall(ctx context.Context, tool, result string) {
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("result", result),
	))
}
