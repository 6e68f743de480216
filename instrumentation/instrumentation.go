package instrumentation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceName is used when Config.ServiceName is empty.
	DefaultServiceName = "mcp-test-kits"

	// DefaultServiceVersion is used when Config.ServiceVersion is empty.
	DefaultServiceVersion = "unknown"

	// MetricsExporterPrometheus exposes metrics through MetricsHandler.
	MetricsExporterPrometheus = "prometheus"

	// MetricsExporterNone keeps the SDK meter provider but exports nothing.
	MetricsExporterNone = "none"

	scopePrefix = "github.com/midodimori/mcp-test-kits/"
)

// Config selects the telemetry pipeline. The zero value yields no-op
// providers.
type Config struct {
	// ServiceName is reported as service.name.
	ServiceName string

	// ServiceVersion is reported as service.version.
	ServiceVersion string

	// Enabled switches from no-op providers to the OpenTelemetry SDK.
	Enabled bool

	// MetricsExporter is "prometheus" (default) or "none".
	MetricsExporter string

	// TracesEndpoint is an OTLP/HTTP endpoint URL such as
	// "http://localhost:4318/v1/traces". Empty disables trace export.
	TracesEndpoint string

	// LogClientIPs controls whether client IPs are attached to spans.
	LogClientIPs bool

	// Resource overrides the default service resource.
	Resource *resource.Resource
}

// Instrumentation owns the meter and tracer providers shared by the HTTP
// layer, the flow controller, the credential stores and the MCP tools.
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	registry       *prometheus.Registry

	metrics *Metrics

		shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// New builds the providers described by config. When config.Enabled is
// false every meter and tracer is a no-op.
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = DefaultServiceVersion
	}
	if config.MetricsExporter == "" {
		config.MetricsExporter = MetricsExporterPrometheus
	}

	res := config.Resource
	if res == nil {
		var err error
		res, err = resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
	}

	inst := &Instrumentation{
		config:   config,
		resource: res,
	}

	if config.Enabled {
		if err := inst.initializeProviders(context.Background()); err != nil {
			_ = inst.Shutdown(context.Background())
			return nil, fmt.Errorf("failed to initialize providers: %w", err)
		}
	} else {
		inst.meterProvider = noop.NewMeterProvider()
		inst.tracerProvider = tracenoop.NewTracerProvider()
	}

	var err error
	inst.metrics, err = newMetrics(inst)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return inst, nil
}

func (i *Instrumentation) initializeProviders(ctx context.Context) error {
	metricOpts := []sdkmetric.Option{sdkmetric.WithResource(i.resource)}

	switch i.config.MetricsExporter {
	case MetricsExporterPrometheus:
		i.registry = prometheus.NewRegistry()
		exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(i.registry))
		if err != nil {
			return fmt.Errorf("start prometheus exporter: %w", err)
		}
		metricOpts = append(metricOpts, sdkmetric.WithReader(exporter))
	case MetricsExporterNone:
	default:
		return fmt.Errorf("unsupported metrics exporter %q", i.config.MetricsExporter)
	}

	mp := sdkmetric.NewMeterProvider(metricOpts...)
	i.meterProvider = mp
	i.shutdownFuncs = append(i.shutdownFuncs, mp.Shutdown)

	if i.config.TracesEndpoint == "" {
		i.tracerProvider = tracenoop.NewTracerProvider()
		return nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(i.config.TracesEndpoint))
	if err != nil {
		return fmt.Errorf("start trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(i.resource),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithBatcher(exporter),
	)
	i.tracerProvider = tp
	i.shutdownFuncs = append(i.shutdownFuncs, tp.Shutdown)
	return nil
}

// Shutdown flushes and stops the SDK providers. Safe to call more than once.
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	var errs []error
	i.shutdownOnce.Do(func() {
		for _, fn := range i.shutdownFuncs {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// Meter returns a named meter for a layer such as "http", "server" or "storage".
func (i *Instrumentation) Meter(scope string) metric.Meter {
	return i.meterProvider.Meter(scopePrefix + scope)
}

// Tracer returns a named tracer for a layer such as "http", "server" or "storage".
func (i *Instrumentation) Tracer(scope string) trace.Tracer {
	return i.tracerProvider.Tracer(scopePrefix + scope)
}

// Metrics returns the instruments created by New.
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// TracerProvider is used by otelhttp to trace inbound requests.
func (i *Instrumentation) TracerProvider() trace.TracerProvider {
	return i.tracerProvider
}

// MeterProvider is used by otelhttp for HTTP server metrics.
func (i *Instrumentation) MeterProvider() metric.MeterProvider {
	return i.meterProvider
}

// MetricsHandler serves the Prometheus exposition format. It responds 404
// when the Prometheus exporter is not active.
func (i *Instrumentation) MetricsHandler() http.Handler {
	if i.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(i.registry, promhttp.HandlerOpts{})
}

// ShouldLogClientIPs reports whether client IPs may be attached to spans.
func (i *Instrumentation) ShouldLogClientIPs() bool {
	return i.config.LogClientIPs
}

// StorageSizeCallback reports the current entry count of one store namespace.
type StorageSizeCallback func() int64

// StorageSizeCallbacks groups the per-namespace size callbacks of a credential store.
// Nil callbacks are skipped.
type StorageSizeCallbacks struct {
	Codes        StorageSizeCallback
	TokenRecords StorageSizeCallback
	Revoked      StorageSizeCallback
	Clients      StorageSizeCallback
}

// RegisterStorageSizeCallbacks registers observable gauges backed by cb.
// Stores call this from SetInstrumentation.
func (i *Instrumentation) RegisterStorageSizeCallbacks(cb StorageSizeCallbacks) error {
	if i.meterProvider == nil {
		return errors.New("meter provider not initialized")
	}

	observe := func(observer metric.Observer, gauge metric.Int64ObservableGauge, fn StorageSizeCallback) {
		if fn != nil {
			observer.ObserveInt64(gauge, fn())
		}
	}

	_, err := i.Meter("storage").RegisterCallback(
		func(_ context.Context, observer metric.Observer) error {
			observe(observer, i.metrics.StorageCodesCount, cb.Codes)
			observe(observer, i.metrics.StorageTokenRecordsCount, cb.TokenRecords)
			observe(observer, i.metrics.StorageRevokedCount, cb.Revoked)
			observe(observer, i.metrics.StorageClientsCount, cb.Clients)
			return nil
		},
		i.metrics.StorageCodesCount,
		i.metrics.StorageTokenRecordsCount,
		i.metrics.StorageRevokedCount,
		i.metrics.StorageClientsCount,
	)

	return err
}
