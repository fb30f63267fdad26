package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yairfalse/vigil/providers"
	"github.com/yairfalse/vigil/telemetry"
	"github.com/yairfalse/vigil/types"
	"github.com/yairfalse/vigil/wal"
)

// Engine wraps a remote client and journals every mutating call. Reads
// pass through untouched.
type Engine struct {
	client  providers.Client
	wal     *wal.WAL
	logger  *telemetry.Logger
	metrics *telemetry.ReconcileMetrics
	options ExecutorOptions

	mu     sync.Mutex
	counts Counts
	// planned holds entities created during a dry run so later reads see them
	planned map[string]providers.CreateRequest
}

var _ providers.Client = (*Engine)(nil)

// NewEngine creates an executor. walInstance and metrics may be nil.
func NewEngine(
	client providers.Client,
	walInstance *wal.WAL,
	logger *telemetry.Logger,
	metrics *telemetry.ReconcileMetrics,
	options ExecutorOptions,
) *Engine {
	if logger == nil {
		logger = telemetry.Nop()
	}
	return &Engine{
		client:  client,
		wal:     walInstance,
		logger:  logger,
		metrics: metrics,
		options: options,
		planned: make(map[string]providers.CreateRequest),
	}
}

// DryRun reports whether mutating calls are suppressed
func (e *Engine) DryRun() bool {
	return e.options.DryRun
}

// Counts returns the operations seen so far
func (e *Engine) Counts() Counts {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts
}

// ResolvePoller passes through to the wrapped client
func (e *Engine) ResolvePoller(ctx context.Context, instance string) (*providers.Poller, error) {
	return e.client.ResolvePoller(ctx, instance)
}

// PublishConfig journals and issues a configuration publish
func (e *Engine) PublishConfig(ctx context.Context, instance string) error {
	op := types.Operation{Action: types.ActionPublish, Target: instance, Object: "poller"}
	err := e.execute(ctx, op, func() error {
		return e.client.PublishConfig(ctx, instance)
	})

	status := string(StatusApplied)
	switch {
	case err != nil:
		status = string(StatusFailed)
	case e.options.DryRun:
		status = string(StatusSkipped)
	}
	e.metrics.RecordPublish(ctx, instance, status)
	return err
}

// Entities returns a journaling view of the wrapped client's entity API
func (e *Engine) Entities(kind types.Kind) (providers.EntityAPI, error) {
	api, err := e.client.Entities(kind)
	if err != nil {
		return nil, err
	}
	return &journaledAPI{engine: e, kind: kind, api: api}, nil
}

// execute journals op as issued, runs call unless dry-run is set, and
// journals the result
func (e *Engine) execute(ctx context.Context, op types.Operation, call func() error) error {
	op.IssuedAt = time.Now().UTC()
	if err := op.Validate(); err != nil {
		return types.NewValidationError(op.Target, err)
	}

	if e.options.DryRun {
		e.finish(ctx, op, StatusSkipped, 0, nil)
		return nil
	}

	if err := e.journal(wal.EntryIssued, op.Target, op, nil); err != nil {
		return fmt.Errorf("failed to journal %s %s: %w", op.Action, op.Target, err)
	}

	start := time.Now()
	err := call()
	if err != nil {
		e.finish(ctx, op, StatusFailed, time.Since(start), err)
		return err
	}
	e.finish(ctx, op, StatusApplied, time.Since(start), nil)
	return nil
}

func (e *Engine) finish(ctx context.Context, op types.Operation, status ExecutionStatus, d time.Duration, opErr error) {
	result := OperationResult{Operation: op, Status: status, Duration: d}
	if opErr != nil {
		result.Error = opErr.Error()
	}

	entryType := wal.EntryApplied
	switch status {
	case StatusFailed:
		entryType = wal.EntryFailed
	case StatusSkipped:
		entryType = wal.EntrySkipped
	}
	// The remote call already happened; a journal failure is logged, not returned.
	if err := e.journal(entryType, op.Target, result, opErr); err != nil {
		e.logger.LogStorageError(ctx, "journal "+string(entryType), err)
	}

	e.mu.Lock()
	switch status {
	case StatusApplied:
		e.counts.Applied++
	case StatusFailed:
		e.counts.Failed++
	case StatusSkipped:
		e.counts.Skipped++
	}
	e.mu.Unlock()

	e.metrics.RecordOperation(ctx, op.Action, string(op.Kind), string(status))
	e.logger.LogOperation(ctx, op.Action, string(op.Kind), op.Target, opErr)
}

func (e *Engine) journal(entryType wal.EntryType, target string, data interface{}, opErr error) error {
	if e.wal == nil {
		return nil
	}
	if opErr != nil {
		return e.wal.AppendError(entryType, target, data, opErr)
	}
	return e.wal.Append(entryType, target, data)
}

func plannedKey(kind types.Kind, id types.Identity) string {
	return string(kind) + ":" + id.String()
}

func (e *Engine) plan(kind types.Kind, req providers.CreateRequest) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.planned[plannedKey(kind, req.Identity)] = req
}

func (e *Engine) plannedEntity(kind types.Kind, id types.Identity) (providers.CreateRequest, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	req, ok := e.planned[plannedKey(kind, id)]
	return req, ok
}
