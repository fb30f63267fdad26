package reconciler

import (
	"context"
	"fmt"
	"strings"

	"github.com/yairfalse/vigil/telemetry"
	"github.com/yairfalse/vigil/types"
)

// ParamReconciler converges flat key/value parameters.
//
// Only the first drifted parameter is set per pass; the caller's next run
// picks up the next one. This keeps each pass to at most one remote write.
type ParamReconciler struct {
	logger *telemetry.Logger
}

// NewParamReconciler creates a parameter reconciler
func NewParamReconciler(logger *telemetry.Logger) *ParamReconciler {
	if logger == nil {
		logger = telemetry.Nop()
	}
	return &ParamReconciler{logger: logger}
}

// ValidateParams rejects parameters without a name
func ValidateParams(desired []types.Param) error {
	for i, p := range desired {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("parameter %d has an empty name", i)
		}
	}
	return nil
}

// Reconcile sets the first parameter whose desired value differs from current
func (r *ParamReconciler) Reconcile(ctx context.Context, current map[string]string, desired []types.Param, set ParamSetter) (types.Outcome, error) {
	if err := ValidateParams(desired); err != nil {
		return types.Unchanged(), types.NewValidationError("", err)
	}

	for _, p := range desired {
		if value, ok := current[p.Name]; ok && value == p.Value {
			continue
		}
		if err := set(ctx, p.Name, p.Value); err != nil {
			return types.Unchanged(), types.NewRemoteError("parameter", p.Name, "set", err)
		}
		entry := "Set parameter " + p.Name
		r.logger.WithContext(ctx).Info().Str("object", "parameter").Msg(entry)
		return types.Changed(entry), nil
	}
	return types.Unchanged(), nil
}
