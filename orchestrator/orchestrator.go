// Package orchestrator runs a manifest's entities through policy admission,
// reconciliation and run history.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/vigil/policy"
	"github.com/yairfalse/vigil/providers"
	"github.com/yairfalse/vigil/reconciler"
	"github.com/yairfalse/vigil/storage"
	"github.com/yairfalse/vigil/telemetry"
	"github.com/yairfalse/vigil/types"
)

// Orchestrator coordinates policy -> reconcile -> record for each spec
type Orchestrator struct {
	reconciler *reconciler.EntityReconciler
	history    storage.HistoryWriter
	enforcer   *policy.Enforcer
	logger     *telemetry.Logger
	metrics    *telemetry.ReconcileMetrics
	tracer     trace.Tracer
	dryRun     bool
	newRunID   func() string
}

// NewOrchestrator creates an orchestrator issuing remote calls through client
func NewOrchestrator(client providers.Client, logger *telemetry.Logger) *Orchestrator {
	if logger == nil {
		logger = telemetry.Nop()
	}
	return &Orchestrator{
		reconciler: reconciler.NewEntityReconciler(client, logger),
		logger:     logger,
		tracer:     telemetry.Tracer,
		newRunID:   uuid.NewString,
	}
}

// WithHistory records every entity result into h
func (o *Orchestrator) WithHistory(h storage.HistoryWriter) *Orchestrator {
	o.history = h
	return o
}

// WithEnforcer guards every spec with policy admission
func (o *Orchestrator) WithEnforcer(e *policy.Enforcer) *Orchestrator {
	o.enforcer = e
	return o
}

// WithMetrics sets the metrics sink
func (o *Orchestrator) WithMetrics(m *telemetry.ReconcileMetrics) *Orchestrator {
	o.metrics = m
	return o
}

// WithTracer sets the tracer for cycle, entity and phase spans
func (o *Orchestrator) WithTracer(t trace.Tracer) *Orchestrator {
	o.tracer = t
	o.reconciler.WithTracer(t)
	return o
}

// WithDryRun marks recorded runs as dry runs. The client decides whether
// calls are actually sent.
func (o *Orchestrator) WithDryRun(dryRun bool) *Orchestrator {
	o.dryRun = dryRun
	return o
}

// RunCycle reconciles specs one after the other. A failed or denied spec
// does not stop the cycle; only context cancellation does.
func (o *Orchestrator) RunCycle(ctx context.Context, specs []types.EntitySpec) (*CycleResult, error) {
	result := &CycleResult{
		RunID:     o.newRunID(),
		StartTime: time.Now(),
		DryRun:    o.dryRun,
		Entities:  make([]EntityResult, 0, len(specs)),
	}

	ctx, span := telemetry.StartCycle(ctx, o.tracer, result.RunID, len(specs))
	defer span.End()

	o.logger.WithContext(ctx).Info().
		Str("run_id", result.RunID).
		Int("entities", len(specs)).
		Bool("dry_run", o.dryRun).
		Msg("starting reconciliation cycle")

	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			span.SetCounts(result.Changed, result.Failed, result.Denied)
			return o.finishCycle(ctx, result), err
		}

		entity := o.processSpec(ctx, result.RunID, spec)
		result.Entities = append(result.Entities, entity)
		result.count(entity.Status)
	}

	span.SetCounts(result.Changed, result.Failed, result.Denied)
	return o.finishCycle(ctx, result), nil
}

func (o *Orchestrator) processSpec(ctx context.Context, runID string, spec types.EntitySpec) EntityResult {
	start := time.Now()
	identity := spec.Identity.String()
	entity := EntityResult{
		Kind:     spec.Kind,
		Identity: identity,
		Instance: spec.TargetInstance(),
	}

	var (
		outcome types.Outcome
		err     error
	)
	if err = o.enforcer.Check(ctx, spec); err == nil {
		outcome, err = o.reconciler.Reconcile(ctx, spec)
	}

	entity.Duration = time.Since(start)
	entity.Changed = outcome.IsChanged()
	entity.Log = outcome.Log()

	var denied *policy.DeniedError
	switch {
	case errors.As(err, &denied):
		entity.Status = storage.StatusDenied
		entity.Error = err.Error()
	case err != nil:
		entity.Status = storage.StatusFailed
		entity.Error = err.Error()
		entity.Phase = types.PhaseOf(err)
		o.logger.LogEntityResult(ctx, string(spec.Kind), identity, entity.Changed, entity.Duration, err)
	case entity.Changed:
		entity.Status = storage.StatusChanged
		o.logger.LogEntityResult(ctx, string(spec.Kind), identity, true, entity.Duration, nil)
	default:
		entity.Status = storage.StatusUnchanged
		o.logger.LogEntityResult(ctx, string(spec.Kind), identity, false, entity.Duration, nil)
	}

	o.metrics.RecordEntity(ctx, string(spec.Kind), string(entity.Status), entity.Duration)
	o.record(ctx, runID, start, entity)
	return entity
}

func (o *Orchestrator) record(ctx context.Context, runID string, start time.Time, entity EntityResult) {
	if o.history == nil {
		return
	}
	_, err := o.history.RecordRun(storage.RunRecord{
		RunID:     runID,
		Kind:      string(entity.Kind),
		Identity:  entity.Identity,
		Instance:  entity.Instance,
		Status:    entity.Status,
		Changed:   entity.Changed,
		Log:       entity.Log,
		Error:     entity.Error,
		Phase:     string(entity.Phase),
		DryRun:    o.dryRun,
		StartedAt: start,
		Duration:  entity.Duration,
	})
	if err != nil {
		o.logger.LogStorageError(ctx, "record_run", err)
	}
}

func (o *Orchestrator) finishCycle(ctx context.Context, result *CycleResult) *CycleResult {
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	o.metrics.RecordCycle(ctx, len(result.Entities), result.Changed, result.Failed, result.Duration)

	o.logger.WithContext(ctx).Info().
		Str("run_id", result.RunID).
		Int("entities", len(result.Entities)).
		Int("changed", result.Changed).
		Int("unchanged", result.Unchanged).
		Int("failed", result.Failed).
		Int("denied", result.Denied).
		Dur("duration", result.Duration).
		Bool("success", result.Success()).
		Msg("reconciliation cycle complete")

	return result
}
