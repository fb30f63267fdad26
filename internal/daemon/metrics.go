package daemon

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DaemonMetrics holds operational metrics using OTEL semantic conventions
type DaemonMetrics struct {
	cycles            metric.Int64Counter
	cycleDuration     metric.Float64Histogram
	manifestEntities  metric.Int64Gauge
	storageOperations metric.Int64Counter
}

// NewDaemonMetrics creates daemon metrics on the global meter provider
func NewDaemonMetrics() (*DaemonMetrics, error) {
	return newDaemonMetricsWithProvider(otel.GetMeterProvider())
}

func newDaemonMetricsWithProvider(provider metric.MeterProvider) (*DaemonMetrics, error) {
	meter := provider.Meter("vigil.daemon")

	cycles, err := meter.Int64Counter(
		"vigil.daemon.cycles",
		metric.WithDescription("Number of manifest reconciliation cycles"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	cycleDuration, err := meter.Float64Histogram(
		"vigil.daemon.cycle.duration",
		metric.WithDescription("Duration of manifest reconciliation cycles"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	manifestEntities, err := meter.Int64Gauge(
		"vigil.manifest.entities",
		metric.WithDescription("Number of entities in the loaded manifest"),
		metric.WithUnit("{entity}"),
	)
	if err != nil {
		return nil, err
	}

	storageOperations, err := meter.Int64Counter(
		"vigil.storage.operations",
		metric.WithDescription("Number of journal and history maintenance operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	return &DaemonMetrics{
		cycles:            cycles,
		cycleDuration:     cycleDuration,
		manifestEntities:  manifestEntities,
		storageOperations: storageOperations,
	}, nil
}

// RecordCycle records a cycle run with status and duration
func (m *DaemonMetrics) RecordCycle(ctx context.Context, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.cycles.Add(ctx, 1, attrs)
	m.cycleDuration.Record(ctx, durationSeconds, attrs)
}

// RecordManifestEntities records the number of entities loaded
func (m *DaemonMetrics) RecordManifestEntities(ctx context.Context, count int64) {
	if m == nil {
		return
	}
	m.manifestEntities.Record(ctx, count)
}

// RecordStorageOperation records a storage operation
func (m *DaemonMetrics) RecordStorageOperation(ctx context.Context, operation string, status string, errorType string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.String("status", status),
	}
	if errorType != "" {
		attrs = append(attrs, attribute.String("error.type", errorType))
	}

	m.storageOperations.Add(ctx, 1, metric.WithAttributes(attrs...))
}
