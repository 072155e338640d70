package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sweetshop/apiserver/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	TracesPath    = "/v1/traces"
	LogsPath      = "/v1/logs"
	ExportTimeout = 10 * time.Second
	MaxQueueSize  = 2048
)

// ShutdownFunc flushes and stops a provider.
type ShutdownFunc func(context.Context) error

func newResource() (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
}

func headers(cfg config.TelemetryConfig) map[string]string {
	if cfg.OtelAuthHeader == "" {
		return nil
	}
	return map[string]string{"Authorization": cfg.OtelAuthHeader}
}

// SetupTracingSDK installs a global OTLP/HTTP tracer provider and the
// W3C trace context propagator.
func SetupTracingSDK(ctx context.Context, cfg config.TelemetryConfig) (*sdktrace.TracerProvider, ShutdownFunc, error) {
	res, err := newResource()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.OtelEndpoint),
		otlptracehttp.WithURLPath(TracesPath),
	}
	if h := headers(cfg); h != nil {
		opts = append(opts, otlptracehttp.WithHeaders(h))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("OTLP trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter,
			sdktrace.WithExportTimeout(ExportTimeout),
			sdktrace.WithMaxQueueSize(MaxQueueSize),
		)),
	)
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}

// SetupLoggingSDK installs a global OTLP/HTTP logger provider.
func SetupLoggingSDK(ctx context.Context, cfg config.TelemetryConfig) (*sdklog.LoggerProvider, ShutdownFunc, error) {
	res, err := newResource()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []otlploghttp.Option{
		otlploghttp.WithEndpoint(cfg.OtelEndpoint),
		otlploghttp.WithURLPath(LogsPath),
	}
	if h := headers(cfg); h != nil {
		opts = append(opts, otlploghttp.WithHeaders(h))
	}
	exporter, err := otlploghttp.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("OTLP log exporter: %w", err)
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter,
			sdklog.WithExportTimeout(ExportTimeout),
			sdklog.WithMaxQueueSize(MaxQueueSize),
		)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)
	return lp, lp.Shutdown, nil
}

// Providers holds the installed telemetry providers. Both are nil when
// telemetry is disabled.
type Providers struct {
	Tracer *sdktrace.TracerProvider
	Logger *sdklog.LoggerProvider

	shutdowns []ShutdownFunc
}

// Setup installs tracing and logging when an endpoint is configured. With
// no endpoint it returns empty Providers and the global no-op providers
// stay in place.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (*Providers, error) {
	p := &Providers{}
	if !cfg.Enabled() {
		return p, nil
	}

	tp, traceShutdown, err := SetupTracingSDK(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p.Tracer = tp
	p.shutdowns = append(p.shutdowns, traceShutdown)

	lp, logShutdown, err := SetupLoggingSDK(ctx, cfg)
	if err != nil {
		return nil, errors.Join(err, p.Shutdown(ctx))
	}
	p.Logger = lp
	p.shutdowns = append(p.shutdowns, logShutdown)
	return p, nil
}

// Shutdown flushes every installed provider.
func (p *Providers) Shutdown(ctx context.Context) error {
	var err error
	for _, fn := range p.shutdowns {
		err = errors.Join(err, fn(ctx))
	}
	p.shutdowns = nil
	return err
}
