package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ReconcileMetrics holds the reconciliation metric instruments.
// A nil *ReconcileMetrics records nothing.
type ReconcileMetrics struct {
	// Counters
	EntitiesReconciled metric.Int64Counter
	OperationsIssued   metric.Int64Counter
	PolicyDenials      metric.Int64Counter
	Publishes          metric.Int64Counter

	// Gauges
	CycleEntities metric.Int64Gauge
	CycleChanged  metric.Int64Gauge
	CycleFailed   metric.Int64Gauge

	// Histograms
	EntityDuration metric.Float64Histogram
	CycleDuration  metric.Float64Histogram
}

// InitReconcileMetrics initializes all reconciliation metrics
func InitReconcileMetrics(meter metric.Meter) (*ReconcileMetrics, error) {
	m := &ReconcileMetrics{}

	if err := m.initCounters(meter); err != nil {
		return nil, err
	}

	if err := m.initGauges(meter); err != nil {
		return nil, err
	}

	if err := m.initHistograms(meter); err != nil {
		return nil, err
	}

	return m, nil
}

// initCounters initializes counter metrics
func (m *ReconcileMetrics) initCounters(meter metric.Meter) error {
	var err error

	m.EntitiesReconciled, err = meter.Int64Counter(
		"vigil.entities.reconciled.total",
		metric.WithDescription("Total number of entity reconciliations by result"),
		metric.WithUnit("entities"),
	)
	if err != nil {
		return err
	}

	m.OperationsIssued, err = meter.Int64Counter(
		"vigil.operations.issued.total",
		metric.WithDescription("Total number of mutating remote operations issued"),
		metric.WithUnit("operations"),
	)
	if err != nil {
		return err
	}

	m.PolicyDenials, err = meter.Int64Counter(
		"vigil.policy.denials.total",
		metric.WithDescription("Total number of specs vetoed by policy"),
		metric.WithUnit("specs"),
	)
	if err != nil {
		return err
	}

	m.Publishes, err = meter.Int64Counter(
		"vigil.config.publishes.total",
		metric.WithDescription("Total number of poller configuration publishes"),
		metric.WithUnit("publishes"),
	)
	if err != nil {
		return err
	}

	return nil
}

// initGauges initializes gauge metrics
func (m *ReconcileMetrics) initGauges(meter metric.Meter) error {
	var err error

	m.CycleEntities, err = meter.Int64Gauge(
		"vigil.cycle.entities",
		metric.WithDescription("Entities processed by the last cycle"),
		metric.WithUnit("entities"),
	)
	if err != nil {
		return err
	}

	m.CycleChanged, err = meter.Int64Gauge(
		"vigil.cycle.changed",
		metric.WithDescription("Entities changed by the last cycle"),
		metric.WithUnit("entities"),
	)
	if err != nil {
		return err
	}

	m.CycleFailed, err = meter.Int64Gauge(
		"vigil.cycle.failed",
		metric.WithDescription("Entities that failed in the last cycle"),
		metric.WithUnit("entities"),
	)
	if err != nil {
		return err
	}

	return nil
}

// initHistograms initializes histogram metrics
func (m *ReconcileMetrics) initHistograms(meter metric.Meter) error {
	var err error

	m.EntityDuration, err = meter.Float64Histogram(
		"vigil.entity.duration.ms",
		metric.WithDescription("Time taken to reconcile one entity"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	m.CycleDuration, err = meter.Float64Histogram(
		"vigil.cycle.duration.ms",
		metric.WithDescription("Time taken to reconcile a whole manifest"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	return nil
}

// RecordEntity records one entity reconciliation
func (m *ReconcileMetrics) RecordEntity(ctx context.Context, kind string, result string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributeSet(attribute.NewSet(
		attribute.String("kind", kind),
		attribute.String("result", result),
	))
	m.EntitiesReconciled.Add(ctx, 1, attrs)
	m.EntityDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

// RecordOperation records a mutating remote operation
func (m *ReconcileMetrics) RecordOperation(ctx context.Context, action string, kind string, status string) {
	if m == nil {
		return
	}
	m.OperationsIssued.Add(ctx, 1,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("action", action),
			attribute.String("kind", kind),
			attribute.String("status", status),
		)),
	)
}

// RecordPolicyDenial records a vetoed spec
func (m *ReconcileMetrics) RecordPolicyDenial(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.PolicyDenials.Add(ctx, 1,
		metric.WithAttributeSet(attribute.NewSet(attribute.String("kind", kind))),
	)
}

// RecordPublish records a configuration publish
func (m *ReconcileMetrics) RecordPublish(ctx context.Context, instance string, status string) {
	if m == nil {
		return
	}
	m.Publishes.Add(ctx, 1,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("poller", instance),
			attribute.String("status", status),
		)),
	)
}

// RecordCycle records the totals of a manifest cycle
func (m *ReconcileMetrics) RecordCycle(ctx context.Context, entities, changed, failed int, duration time.Duration) {
	if m == nil {
		return
	}
	m.CycleEntities.Record(ctx, int64(entities))
	m.CycleChanged.Record(ctx, int64(changed))
	m.CycleFailed.Record(ctx, int64(failed))
	m.CycleDuration.Record(ctx, float64(duration.Microseconds())/1000)
}
