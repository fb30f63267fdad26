package reconciler

import (
	"context"

	"github.com/yairfalse/vigil/telemetry"
	"github.com/yairfalse/vigil/types"
)

// ListReconciler converges an identity-keyed collection (macros,
// hostgroups, templates, contacts, contact groups) item by item.
type ListReconciler struct {
	profile ListProfile
	logger  *telemetry.Logger
}

// NewListReconciler creates a reconciler for one collection profile
func NewListReconciler(profile ListProfile, logger *telemetry.Logger) *ListReconciler {
	if logger == nil {
		logger = telemetry.Nop()
	}
	return &ListReconciler{profile: profile, logger: logger}
}

// Reconcile walks desired in input order and issues the minimal ops.
// The current snapshot is never modified. The first failing op aborts the
// pass; ops already issued stay applied.
func (r *ListReconciler) Reconcile(ctx context.Context, current map[string]types.Item, desired []types.Item, ops ListOps) (types.Outcome, error) {
	view := make(map[string]types.Item, len(current))
	for k, v := range current {
		view[k] = v
	}

	outcome := types.Unchanged()
	for _, item := range desired {
		diff := Compare(view, r.profile, item)

		var err error
		switch diff.Type {
		case DiffMissing:
			outcome, err = r.create(ctx, view, diff, ops, outcome)
		case DiffUnwanted:
			outcome, err = r.delete(ctx, view, diff, ops, outcome)
		case DiffDrifted:
			outcome, err = r.update(ctx, view, diff, ops, outcome)
		}
		if err != nil {
			return outcome, err
		}
	}
	return outcome, nil
}

func (r *ListReconciler) create(ctx context.Context, view map[string]types.Item, diff Diff, ops ListOps, outcome types.Outcome) (types.Outcome, error) {
	if err := ops.Create(ctx, diff.Desired); err != nil {
		return outcome, types.NewRemoteError(r.profile.Object, diff.Name, "create", err)
	}
	view[diff.Key] = diff.Desired
	outcome = r.record(ctx, outcome, "Add "+r.profile.Object+" "+diff.Name)
	return outcome, r.after(ctx, diff, ops)
}

func (r *ListReconciler) delete(ctx context.Context, view map[string]types.Item, diff Diff, ops ListOps, outcome types.Outcome) (types.Outcome, error) {
	if err := ops.Delete(ctx, diff.Desired); err != nil {
		return outcome, types.NewRemoteError(r.profile.Object, diff.Name, "delete", err)
	}
	delete(view, diff.Key)
	outcome = r.record(ctx, outcome, "Delete "+r.profile.Object+" "+diff.Name)
	return outcome, r.after(ctx, diff, ops)
}

func (r *ListReconciler) update(ctx context.Context, view map[string]types.Item, diff Diff, ops ListOps, outcome types.Outcome) (types.Outcome, error) {
	if ops.Update == nil {
		return outcome, nil
	}
	if err := ops.Update(ctx, diff.Desired); err != nil {
		return outcome, types.NewRemoteError(r.profile.Object, diff.Name, "update", err)
	}
	view[diff.Key] = diff.Desired
	return r.record(ctx, outcome, "Update "+r.profile.Object+" "+diff.Name), nil
}

func (r *ListReconciler) after(ctx context.Context, diff Diff, ops ListOps) error {
	if ops.After == nil {
		return nil
	}
	if err := ops.After(ctx); err != nil {
		return types.NewRemoteError(r.profile.Object, diff.Name, "apply templates after", err)
	}
	return nil
}

func (r *ListReconciler) record(ctx context.Context, outcome types.Outcome, entry string) types.Outcome {
	r.logger.WithContext(ctx).Info().Str("object", r.profile.Object).Msg(entry)
	return outcome.Record(entry)
}
