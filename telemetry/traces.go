package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EntitySpan represents the reconciliation of one entity
type EntitySpan struct {
	ctx  context.Context
	span trace.Span
}

// StartEntityReconcile starts a new entity reconciliation span
func StartEntityReconcile(
	ctx context.Context,
	tracer trace.Tracer,
	kind string,
	identity string,
	instance string,
) (context.Context, *EntitySpan) {
	ctx, span := tracer.Start(ctx, "reconcile.entity",
		trace.WithAttributes(
			attribute.String("entity.kind", kind),
			attribute.String("entity.identity", identity),
			attribute.String("poller", instance),
		),
	)

	return ctx, &EntitySpan{ctx: ctx, span: span}
}

// Span exposes the underlying span for events
func (e *EntitySpan) Span() trace.Span {
	return e.span
}

// SetOutcome records the result of the reconciliation
func (e *EntitySpan) SetOutcome(changed bool, changes int) {
	e.span.SetAttributes(
		attribute.Bool("outcome.changed", changed),
		attribute.Int("outcome.changes", changes),
	)
}

// RecordError marks the span failed with the phase that failed
func (e *EntitySpan) RecordError(phase string, err error) {
	if err == nil {
		return
	}
	e.span.SetAttributes(attribute.String("error.phase", phase))
	e.span.RecordError(err)
	e.span.SetStatus(codes.Error, err.Error())
}

// End ends the entity span
func (e *EntitySpan) End() {
	e.span.End()
}

// StartPhase starts a child span for one reconciliation phase
func StartPhase(ctx context.Context, tracer trace.Tracer, phase string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "reconcile.phase."+phase,
		trace.WithAttributes(attribute.String("phase", phase)),
	)
}

// EndPhase ends a phase span, recording err if any
func EndPhase(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CycleSpan represents one pass over a manifest
type CycleSpan struct {
	span trace.Span
}

// StartCycle starts a manifest cycle span
func StartCycle(ctx context.Context, tracer trace.Tracer, runID string, entities int) (context.Context, *CycleSpan) {
	ctx, span := tracer.Start(ctx, "reconcile.cycle",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("entities.total", entities),
		),
	)
	return ctx, &CycleSpan{span: span}
}

// SetCounts records per-cycle counts
func (c *CycleSpan) SetCounts(changed, failed, denied int) {
	c.span.SetAttributes(
		attribute.Int("entities.changed", changed),
		attribute.Int("entities.failed", failed),
		attribute.Int("entities.denied", denied),
	)
}

// End ends the cycle span
func (c *CycleSpan) End() {
	c.span.End()
}
