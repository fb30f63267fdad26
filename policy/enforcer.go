package policy

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/vigil/telemetry"
	"github.com/yairfalse/vigil/types"
)

// DeniedError is returned for a spec vetoed by policy. No remote call was made.
type DeniedError struct {
	Kind     types.Kind
	Identity string
	Reasons  []string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("policy denied %s %s: %s", e.Kind.Label(), e.Identity, strings.Join(e.Reasons, "; "))
}

// Enforcer turns policy results into admission decisions
type Enforcer struct {
	engine  *PolicyEngine
	logger  *telemetry.Logger
	metrics *telemetry.ReconcileMetrics
}

// NewEnforcer creates an enforcer. A nil engine admits everything.
func NewEnforcer(engine *PolicyEngine, logger *telemetry.Logger, metrics *telemetry.ReconcileMetrics) *Enforcer {
	if logger == nil {
		logger = telemetry.Nop()
	}
	return &Enforcer{engine: engine, logger: logger, metrics: metrics}
}

// Check admits spec or returns a *DeniedError. Warnings are logged only.
func (e *Enforcer) Check(ctx context.Context, spec types.EntitySpec) error {
	if e == nil || e.engine == nil || e.engine.PolicyCount() == 0 {
		return nil
	}

	result, err := e.engine.Admit(ctx, spec)
	if err != nil {
		return fmt.Errorf("policy evaluation for %s: %w", spec.Identity, err)
	}

	identity := spec.Identity.String()
	for _, warning := range result.Warnings {
		e.logger.WithContext(ctx).Warn().
			Str("kind", string(spec.Kind)).
			Str("identity", identity).
			Msg(warning)
	}

	if !result.Denied() {
		return nil
	}

	e.metrics.RecordPolicyDenial(ctx, string(spec.Kind))
	telemetry.RecordPolicyDeniedEvent(trace.SpanFromContext(ctx), string(spec.Kind), identity, result.Reasons)
	e.logger.WithContext(ctx).Warn().
		Str("kind", string(spec.Kind)).
		Str("identity", identity).
		Strs("reasons", result.Reasons).
		Strs("policies", result.Policies).
		Msg("spec denied by policy")

	return &DeniedError{Kind: spec.Kind, Identity: identity, Reasons: result.Reasons}
}
