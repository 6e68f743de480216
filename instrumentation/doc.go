// Package instrumentation wires OpenTelemetry metrics and traces for the
// authorization server, its credential stores and the protected MCP API.
//
// When Config.Enabled is false every provider is a no-op and recording costs
// nothing. When enabled, metrics are collected by the OpenTelemetry SDK and,
// with the default "prometheus" exporter, exposed through MetricsHandler:
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		Enabled:        true,
//		ServiceName:    "mcp-test-kits",
//		ServiceVersion: version,
//	})
//	if err != nil {
//		return err
//	}
//	defer inst.Shutdown(context.Background())
//
//	router.Handle("/metrics", inst.MetricsHandler())
//
// Traces are exported over OTLP/HTTP when Config.TracesEndpoint is set.
//
// # Metrics
//
//   - oauth.http.requests.total{method, endpoint, status}
//   - oauth.http.request.duration{endpoint}
//   - oauth.authorization.started{client_id, auto_approved}
//   - oauth.authorization.decided{client_id, approved}
//   - oauth.code.exchanged{client_id, pkce_method}
//   - oauth.code.exchange_failed{error}
//   - oauth.code.replay_detected
//   - oauth.pkce.validation_failed{method}
//   - oauth.token.revoked{decoded}
//   - oauth.token.validations{result}
//   - oauth.client.registered{token_endpoint_auth_method}
//   - storage.operation.total{operation, result}, storage.operation.duration{operation}
//   - storage.codes.count, storage.token_records.count, storage.revoked.count, storage.clients.count
//   - mcp.tool.calls{tool, result}
//
// Span attributes never carry codes or tokens. Use the Attr constants and the
// nil-safe helpers in this package.
package instrumentation
