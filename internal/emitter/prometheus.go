package emitter

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/vigil/orchestrator"
)

// PrometheusEmitter exposes the last cycle's per-entity results via OTEL.
type PrometheusEmitter struct {
	meter metric.Meter

	// Metrics
	entityInfo         metric.Int64ObservableGauge
	cycleEntitiesTotal metric.Int64Counter
	transitionsTotal   metric.Int64Counter

	// State for observable gauge
	mu       sync.RWMutex
	entities []orchestrator.EntityResult

	// Diff tracking
	diffTracker *DiffTracker
}

// NewPrometheusEmitter creates a Prometheus emitter on the global meter provider.
func NewPrometheusEmitter() (*PrometheusEmitter, error) {
	return newPrometheusEmitterWithProvider(otel.GetMeterProvider())
}

func newPrometheusEmitterWithProvider(provider metric.MeterProvider) (*PrometheusEmitter, error) {
	e := &PrometheusEmitter{
		meter:       provider.Meter("vigil"),
		diffTracker: NewDiffTracker(),
	}

	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return e, nil
}

func (e *PrometheusEmitter) initMetrics() error {
	var err error

	// Entity info gauge - shows the last result of every entity
	e.entityInfo, err = e.meter.Int64ObservableGauge(
		"vigil_entity_info",
		metric.WithDescription("Last reconciliation result per managed entity"),
		metric.WithInt64Callback(e.observeEntities),
	)
	if err != nil {
		return fmt.Errorf("create entity_info gauge: %w", err)
	}

	e.cycleEntitiesTotal, err = e.meter.Int64Counter(
		"vigil_cycle_entities_total",
		metric.WithDescription("Entities processed per result status"),
	)
	if err != nil {
		return fmt.Errorf("create cycle_entities counter: %w", err)
	}

	e.transitionsTotal, err = e.meter.Int64Counter(
		"vigil_entity_transitions_total",
		metric.WithDescription("Entity result transitions between cycles"),
	)
	if err != nil {
		return fmt.Errorf("create entity_transitions counter: %w", err)
	}

	return nil
}

// Emit records the cycle result as metrics.
func (e *PrometheusEmitter) Emit(ctx context.Context, result *orchestrator.CycleResult) error {
	if result == nil {
		return nil
	}

	for _, r := range result.Entities {
		e.cycleEntitiesTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", string(r.Kind)),
			attribute.String("status", string(r.Status)),
		))
	}

	e.emitDiffs(ctx, result.Entities)

	e.mu.Lock()
	e.entities = result.Entities
	e.mu.Unlock()

	e.diffTracker.Update(result.Entities)
	return nil
}

// emitDiffs computes transitions and emits metrics/logs for them.
func (e *PrometheusEmitter) emitDiffs(ctx context.Context, current []orchestrator.EntityResult) {
	diffs := e.diffTracker.ComputeDiff(current)
	if diffs == nil {
		// First cycle - baseline established
		return
	}

	for _, diff := range diffs {
		e.transitionsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", string(diff.Entity.Kind)),
			attribute.String("transition", string(diff.Type)),
		))

		logEvent := log.Info().
			Str("kind", string(diff.Entity.Kind)).
			Str("identity", diff.Entity.Identity).
			Str("transition", string(diff.Type)).
			Str("status", string(diff.Entity.Status))
		if diff.Previous != nil {
			logEvent = logEvent.
				Str("status.from", string(diff.Previous.Status)).
				Str("instance.from", diff.Previous.Instance)
		}
		if diff.Entity.Error != "" {
			logEvent = logEvent.Str("error", diff.Entity.Error)
		}
		logEvent.Msg("entity transition")
	}
}

// observeEntities is the callback for the entity_info gauge.
func (e *PrometheusEmitter) observeEntities(_ context.Context, o metric.Int64Observer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, r := range e.entities {
		attrs := []attribute.KeyValue{
			attribute.String("kind", string(r.Kind)),
			attribute.String("identity", r.Identity),
			attribute.String("instance", r.Instance),
			attribute.String("status", string(r.Status)),
		}
		if r.Phase != "" {
			attrs = append(attrs, attribute.String("phase", string(r.Phase)))
		}

		o.Observe(1, metric.WithAttributes(attrs...))
	}

	return nil
}

// Close is a no-op for Prometheus emitter.
func (e *PrometheusEmitter) Close() error {
	return nil
}
