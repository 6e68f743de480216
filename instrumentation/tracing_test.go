package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSpanHelpers_NilSafe(t *testing.T) {
	RecordError(nil, errors.New("boom"))
	SetSpanSuccess(nil)
	SetSpanError(nil, "boom")
	SetSpanAttributes(nil, attribute.String("k", "v"))
	AddOAuthFlowAttributes(nil, "client", "scope", "resource")
	AddOAuthErrorAttributes(nil, "invalid_grant", "")
	AddStorageAttributes(nil, "get_code", "memory")
	AddHTTPAttributes(nil, "GET", "/oauth/authorize", 302)
	AddSecurityAttributes(nil, "127.0.0.1")
}

func TestSpanHelpers(t *testing.T) {
	inst, err := New(Config{Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	_, span := inst.Tracer("server").Start(context.Background(), "test-span")
	defer span.End()

	AddOAuthFlowAttributes(span, "test-client", "mcp:tools:*", "http://localhost:3000")
	AddOAuthFlowAttributes(span, "", "", "")
	AddOAuthErrorAttributes(span, "invalid_grant", "Invalid code_verifier")
	AddStorageAttributes(span, "save_code", "memory")
	AddHTTPAttributes(span, "POST", "/oauth/token", 200)
	AddSecurityAttributes(span, "")
	RecordError(span, errors.New("test error"))
	RecordError(span, nil)
	SetSpanError(span, "failed")
	SetSpanSuccess(span)
}

func TestNonEmpty(t *testing.T) {
	got := nonEmpty(AttrClientID, "abc", AttrScope, "", AttrResource, "https://api")

	want := []attribute.KeyValue{
		attribute.String(AttrClientID, "abc"),
		attribute.String(AttrResource, "https://api"),
	}
	if len(got) != len(want) {
		t.Fatalf("nonEmpty() returned %d attributes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("nonEmpty()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
