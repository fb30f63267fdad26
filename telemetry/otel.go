package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	promclient "github.com/prometheus/client_golang/prometheus"
)

var (
	Tracer = otel.Tracer(instrumentationName)
	Meter  = otel.Meter(instrumentationName)

	// PrometheusRegistry backs the daemon's /metrics endpoint
	PrometheusRegistry *promclient.Registry

	// Metrics is nil until InitOTEL succeeds
	Metrics *ReconcileMetrics
)

const instrumentationName = "github.com/yairfalse/vigil"

// Config mirrors the [otel] section of the vigil config file.
// OTLP push is enabled only when OTELEndpoint is set.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTELEndpoint   string
	Insecure       bool
}

// InitOTEL installs the meter provider (always scraped through
// PrometheusRegistry) and, with an endpoint, OTLP trace and metric export.
func InitOTEL(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "vigil"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var shutdowns []func(context.Context) error
	shutdownAll := func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdowns {
			errs = append(errs, fn(ctx))
		}
		return errors.Join(errs...)
	}

	if cfg.OTELEndpoint != "" {
		traceShutdown, err := setupTraceProvider(ctx, cfg, res)
		if err != nil {
			return nil, fmt.Errorf("failed to setup traces: %w", err)
		}
		shutdowns = append(shutdowns, traceShutdown)
	}

	metricShutdown, err := setupMetricProvider(ctx, cfg, res)
	if err != nil {
		_ = shutdownAll(ctx)
		return nil, fmt.Errorf("failed to setup metrics: %w", err)
	}
	shutdowns = append(shutdowns, metricShutdown)

	m, err := InitReconcileMetrics(Meter)
	if err != nil {
		_ = shutdownAll(ctx)
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	Metrics = m

	return shutdownAll, nil
}

func dialOptions(cfg Config) []grpc.DialOption {
	if !cfg.Insecure {
		return nil
	}
	return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
}

func setupTraceProvider(ctx context.Context, cfg Config, res *resource.Resource) (func(context.Context) error, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTELEndpoint)}
	for _, d := range dialOptions(cfg) {
		opts = append(opts, otlptracegrpc.WithDialOption(d))
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	Tracer = provider.Tracer(instrumentationName)

	return provider.Shutdown, nil
}

func setupMetricProvider(ctx context.Context, cfg Config, res *resource.Resource) (func(context.Context) error, error) {
	registry := promclient.NewRegistry()
	promReader, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	providerOpts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promReader),
	}

	if cfg.OTELEndpoint != "" {
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELEndpoint)}
		for _, d := range dialOptions(cfg) {
			opts = append(opts, otlpmetricgrpc.WithDialOption(d))
		}
		exporter, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second)),
		))
	}

	provider := sdkmetric.NewMeterProvider(providerOpts...)
	otel.SetMeterProvider(provider)
	Meter = provider.Meter(instrumentationName)
	PrometheusRegistry = registry

	return provider.Shutdown, nil
}
