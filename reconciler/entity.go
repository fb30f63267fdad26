package reconciler

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/vigil/providers"
	"github.com/yairfalse/vigil/telemetry"
	"github.com/yairfalse/vigil/types"
)

// EntityReconciler converges one entity and its sub-resources against the
// remote, phase by phase: existence, activation, attributes, associations,
// macros, params, then publish.
type EntityReconciler struct {
	client providers.Client
	logger *telemetry.Logger
	tracer trace.Tracer
	params *ParamReconciler
}

// NewEntityReconciler creates a reconciler issuing calls through client
func NewEntityReconciler(client providers.Client, logger *telemetry.Logger) *EntityReconciler {
	if logger == nil {
		logger = telemetry.Nop()
	}
	return &EntityReconciler{
		client: client,
		logger: logger,
		tracer: telemetry.Tracer,
		params: NewParamReconciler(logger),
	}
}

// WithTracer replaces the tracer used for entity and phase spans
func (r *EntityReconciler) WithTracer(tracer trace.Tracer) *EntityReconciler {
	r.tracer = tracer
	return r
}

// Reconcile converges spec. On failure the outcome accumulated so far is
// returned along with an error naming the failed phase; remote changes
// already made are kept.
func (r *EntityReconciler) Reconcile(ctx context.Context, spec types.EntitySpec) (types.Outcome, error) {
	ctx, span := telemetry.StartEntityReconcile(ctx, r.tracer, string(spec.Kind), spec.Identity.String(), spec.TargetInstance())
	defer span.End()

	run := &entityRun{
		reconciler: r,
		spec:       spec,
		identity:   spec.Identity.String(),
		outcome:    types.Unchanged(),
	}
	err := run.execute(ctx)

	span.SetOutcome(run.outcome.IsChanged(), run.outcome.Len())
	span.RecordError(string(types.PhaseOf(err)), err)
	return run.outcome, err
}

type phaseStep struct {
	phase types.Phase
	fn    func(context.Context) error
}

// entityRun holds the state of a single Reconcile call
type entityRun struct {
	reconciler *EntityReconciler
	spec       types.EntitySpec
	identity   string
	profile    kindProfile
	api        providers.EntityAPI
	entity     *providers.Entity
	outcome    types.Outcome
}

func (run *entityRun) execute(ctx context.Context) error {
	if err := run.validate(); err != nil {
		return err
	}
	if err := run.phase(ctx, types.PhaseResolve, run.resolve); err != nil {
		return err
	}
	if err := run.phase(ctx, types.PhaseFetch, run.fetch); err != nil {
		return err
	}

	if run.entity == nil {
		if run.spec.State.IsAbsent() {
			return nil
		}
		if err := run.phase(ctx, types.PhaseCreate, run.create); err != nil {
			return err
		}
	} else if run.spec.State.IsAbsent() {
		if err := run.phase(ctx, types.PhaseDelete, run.delete); err != nil {
			return err
		}
		return run.publish(ctx)
	}

	steps := []phaseStep{
		{types.PhaseActivation, run.activation},
		{types.PhaseAttributes, run.attributes},
	}
	for _, kind := range associationOrder {
		kind := kind
		steps = append(steps, phaseStep{phaseFor(kind), func(ctx context.Context) error {
			return run.association(ctx, kind)
		}})
	}
	steps = append(steps,
		phaseStep{types.PhaseMacros, run.macros},
		phaseStep{types.PhaseParams, run.parameters},
	)

	for _, step := range steps {
		if err := run.phase(ctx, step.phase, step.fn); err != nil {
			return err
		}
	}

	return run.publish(ctx)
}

// phase runs fn inside a phase span and tags any error with phase and identity
func (run *entityRun) phase(ctx context.Context, phase types.Phase, fn func(context.Context) error) error {
	ctx, span := telemetry.StartPhase(ctx, run.reconciler.tracer, string(phase))
	err := types.WithPhase(fn(ctx), phase, run.identity)
	telemetry.EndPhase(span, err)
	return err
}

func (run *entityRun) validate() error {
	if err := run.spec.Validate(); err != nil {
		return types.NewValidationError(run.identity, err)
	}
	profile, err := profileFor(run.spec.Kind)
	if err != nil {
		return types.NewValidationError(run.identity, err)
	}
	if err := profile.validate(run.spec); err != nil {
		return types.NewValidationError(run.identity, err)
	}
	run.profile = profile
	return nil
}

func (run *entityRun) resolve(ctx context.Context) error {
	client := run.reconciler.client
	instance := run.spec.TargetInstance()

	if _, err := client.ResolvePoller(ctx, instance); err != nil {
		if errors.Is(err, providers.ErrNotFound) {
			return &types.Error{Kind: types.ErrorResolution, Object: "poller", Name: instance, Op: "resolve", Err: err}
		}
		return err
	}

	api, err := client.Entities(run.spec.Kind)
	if err != nil {
		return &types.Error{Kind: types.ErrorValidation, Err: err}
	}
	run.api = api
	return nil
}

func (run *entityRun) fetch(ctx context.Context) error {
	entity, found, err := run.api.Get(ctx, run.spec.Identity)
	if err != nil {
		return err
	}
	if found {
		run.entity = entity
	}
	return nil
}

func (run *entityRun) create(ctx context.Context) error {
	req, err := run.profile.createRequest(run.spec)
	if err != nil {
		return &types.Error{Kind: types.ErrorValidation, Err: err}
	}
	if err := run.api.Create(ctx, req); err != nil {
		return types.NewRemoteError(run.profile.kind.Label(), run.identity, "create", err)
	}
	run.record(ctx, "Add "+run.profile.kind.Label()+" "+run.identity)

	entity, found, err := run.api.Get(ctx, run.spec.Identity)
	if err != nil {
		return err
	}
	if !found {
		return &types.Error{Kind: types.ErrorResolution, Object: run.profile.kind.Label(), Name: run.identity, Op: "fetch after create", Err: providers.ErrNotFound}
	}
	run.entity = entity

	if run.profile.applyTemplatesOnCreate {
		if err := run.api.ApplyTemplates(ctx, run.spec.Identity); err != nil {
			return types.NewRemoteError("templates", run.identity, "apply", err)
		}
	}
	return nil
}

func (run *entityRun) delete(ctx context.Context) error {
	if err := run.api.Delete(ctx, run.spec.Identity); err != nil {
		return types.NewRemoteError(run.profile.kind.Label(), run.identity, "delete", err)
	}
	run.record(ctx, "Delete "+run.profile.kind.Label()+" "+run.identity)
	return nil
}

func (run *entityRun) activation(ctx context.Context) error {
	if !run.profile.activation {
		return nil
	}

	label := capitalize(run.profile.kind.Label())
	enabled := run.entity.Enabled()

	switch {
	case run.spec.Status.IsDisabled() && enabled:
		if err := run.api.Disable(ctx, run.spec.Identity); err != nil {
			return types.NewRemoteError(run.profile.kind.Label(), run.identity, "disable", err)
		}
		run.record(ctx, label+" disabled")
	case !run.spec.Status.IsDisabled() && !enabled:
		if err := run.api.Enable(ctx, run.spec.Identity); err != nil {
			return types.NewRemoteError(run.profile.kind.Label(), run.identity, "enable", err)
		}
		run.record(ctx, label+" enabled")
	}
	return nil
}

func (run *entityRun) attributes(ctx context.Context) error {
	for _, attr := range run.profile.attributes {
		desired := attr.value(run.spec)
		if desired == "" {
			continue
		}
		current := run.entity.Attributes[attr.name]
		if current == desired {
			continue
		}
		if err := run.api.SetAttribute(ctx, run.spec.Identity, attr.name, desired); err != nil {
			return types.NewRemoteError("attribute", attr.name, "set", err)
		}
		run.record(ctx, "Update "+attr.name+": "+current+" -> "+desired)
	}
	return nil
}

func (run *entityRun) association(ctx context.Context, kind types.AssociationKind) error {
	desired := run.spec.Associations(kind)
	if len(desired) == 0 || !run.profile.supportsAssociation(kind) {
		return nil
	}

	current, err := run.api.Associations(ctx, run.spec.Identity, kind)
	if err != nil {
		return err
	}

	id := run.spec.Identity
	ops := ListOps{
		Create: func(ctx context.Context, item types.Item) error {
			return run.api.AddAssociation(ctx, id, kind, []string{item.Name})
		},
		Delete: func(ctx context.Context, item types.Item) error {
			return run.api.RemoveAssociation(ctx, id, kind, []string{item.Name})
		},
	}
	if kind.NeedsTemplateApply() {
		ops.After = func(ctx context.Context) error {
			return run.api.ApplyTemplates(ctx, id)
		}
	}

	lists := NewListReconciler(ListProfile{Object: string(kind), Equal: PresenceEqual}, run.reconciler.logger)
	return run.merge(ctx, string(kind), lists, current, desired, ops)
}

func (run *entityRun) macros(ctx context.Context) error {
	if len(run.spec.Macros) == 0 || !run.profile.macros {
		return nil
	}

	current, err := run.api.Macros(ctx, run.spec.Identity)
	if err != nil {
		return err
	}

	id := run.spec.Identity
	set := func(ctx context.Context, item types.Item) error {
		return run.api.SetMacro(ctx, id, item)
	}
	ops := ListOps{
		Create: set,
		Update: set,
		Delete: func(ctx context.Context, item types.Item) error {
			return run.api.DeleteMacro(ctx, id, item.Name)
		},
	}

	lists := NewListReconciler(ListProfile{
		Object: "macro",
		Key:    MacroKey(MacroPrefix(run.profile.kind)),
		Equal:  MacroEqual,
	}, run.reconciler.logger)
	return run.merge(ctx, "macros", lists, current, run.spec.Macros, ops)
}

// merge runs a list reconciliation and folds its outcome into the run,
// keeping partial progress when it fails
func (run *entityRun) merge(ctx context.Context, what string, lists *ListReconciler, current map[string]types.Item, desired []types.Item, ops ListOps) error {
	sub, err := lists.Reconcile(ctx, current, desired, ops)
	run.outcome = run.outcome.Merge(sub)
	span := trace.SpanFromContext(ctx)
	for _, entry := range sub.Log() {
		telemetry.RecordChangeEvent(span, string(run.profile.kind), run.identity, what, entry)
	}
	return err
}

func (run *entityRun) parameters(ctx context.Context) error {
	if len(run.spec.Params) == 0 {
		return nil
	}

	names := make([]string, 0, len(run.spec.Params))
	for _, p := range run.spec.Params {
		names = append(names, p.Name)
	}
	current, err := run.api.Params(ctx, run.spec.Identity, names)
	if err != nil {
		return err
	}

	id := run.spec.Identity
	sub, err := run.reconciler.params.Reconcile(ctx, current, run.spec.Params, func(ctx context.Context, name, value string) error {
		return run.api.SetAttribute(ctx, id, name, value)
	})
	run.outcome = run.outcome.Merge(sub)
	return err
}

func (run *entityRun) publish(ctx context.Context) error {
	if !run.outcome.IsChanged() || !run.spec.Publish() {
		return nil
	}

	instance := run.spec.TargetInstance()
	ctx, span := telemetry.StartPhase(ctx, run.reconciler.tracer, string(types.PhasePublish))
	err := run.reconciler.client.PublishConfig(ctx, instance)
	telemetry.RecordPublishEvent(span, instance, err)
	if err != nil {
		err = &types.Error{Kind: types.ErrorPublish, Phase: types.PhasePublish, Identity: run.identity, Object: "poller", Name: instance, Op: "publish", Err: err}
	}
	telemetry.EndPhase(span, err)

	if err == nil {
		run.reconciler.logger.WithContext(ctx).Info().Str("poller", instance).Msg("Configuration published")
	}
	return err
}

// record appends a change entry to the run outcome
func (run *entityRun) record(ctx context.Context, entry string) {
	run.outcome = run.outcome.Record(entry)
	run.reconciler.logger.LogChange(ctx, string(run.profile.kind), run.identity, entry)
	telemetry.RecordChangeEvent(trace.SpanFromContext(ctx), string(run.profile.kind), run.identity, "", entry)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
