package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/vigil/storage"
	"github.com/yairfalse/vigil/telemetry"
	"github.com/yairfalse/vigil/types"
)

// Query is the rule root every policy module writes to. Modules declare
// `package vigil` and add messages to the `deny` and `warn` sets.
const Query = "data.vigil"

// PolicyEngine evaluates rego admission policies against desired specs
// before any remote call is made
type PolicyEngine struct {
	history storage.HistoryReader
	logger  *telemetry.Logger
	tracer  trace.Tracer

	mu      sync.RWMutex
	queries map[string]rego.PreparedEvalQuery
}

// NewPolicyEngine creates an engine. history may be nil; when set, policies
// see a summary of the entity's earlier runs.
func NewPolicyEngine(history storage.HistoryReader, logger *telemetry.Logger) *PolicyEngine {
	if logger == nil {
		logger = telemetry.Nop()
	}
	return &PolicyEngine{
		history: history,
		logger:  logger,
		tracer:  telemetry.Tracer,
		queries: make(map[string]rego.PreparedEvalQuery),
	}
}

// LoadPolicy compiles a rego module and adds it under name
func (pe *PolicyEngine) LoadPolicy(ctx context.Context, name string, regoCode string) error {
	ctx, span := pe.tracer.Start(ctx, "policy_engine.load_policy",
		trace.WithAttributes(attribute.String("policy.name", name)))
	defer span.End()

	prepared, err := rego.New(
		rego.Query(Query),
		rego.Module(name+".rego", regoCode),
	).PrepareForEval(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to compile policy %s: %w", name, err)
	}

	pe.mu.Lock()
	pe.queries[name] = prepared
	pe.mu.Unlock()

	pe.logger.WithContext(ctx).Debug().
		Str("policy_name", name).
		Msg("policy loaded")
	return nil
}

// PolicyCount returns the number of loaded policies
func (pe *PolicyEngine) PolicyCount() int {
	pe.mu.RLock()
	defer pe.mu.RUnlock()
	return len(pe.queries)
}

// BuildPolicyInput assembles the input document for spec
func (pe *PolicyEngine) BuildPolicyInput(ctx context.Context, spec types.EntitySpec) PolicyInput {
	input := PolicyInput{
		Spec:      spec,
		Instance:  spec.TargetInstance(),
		Timestamp: time.Now().UTC(),
	}
	if pe.history == nil {
		return input
	}

	state, err := pe.history.GetEntityState(string(spec.Kind), spec.Identity.String())
	if err != nil {
		return input
	}
	input.History = &HistoryContext{
		LastStatus:          string(state.LastStatus),
		LastRunID:           state.LastRunID,
		ConsecutiveFailures: state.ConsecutiveFailures,
		Runs:                state.LastSeenRev - state.FirstSeenRev + 1,
	}
	return input
}

// Admit evaluates every loaded policy against spec
func (pe *PolicyEngine) Admit(ctx context.Context, spec types.EntitySpec) (PolicyResult, error) {
	return pe.Evaluate(ctx, pe.BuildPolicyInput(ctx, spec))
}

// Evaluate runs all loaded policies against input. Any deny message from
// any policy denies the spec.
func (pe *PolicyEngine) Evaluate(ctx context.Context, input PolicyInput) (PolicyResult, error) {
	ctx, span := pe.tracer.Start(ctx, "policy_engine.evaluate",
		trace.WithAttributes(
			attribute.String("entity.kind", string(input.Spec.Kind)),
			attribute.String("entity.identity", input.Spec.Identity.String())))
	defer span.End()

	pe.mu.RLock()
	names := make([]string, 0, len(pe.queries))
	queries := make(map[string]rego.PreparedEvalQuery, len(pe.queries))
	for name, q := range pe.queries {
		names = append(names, name)
		queries[name] = q
	}
	pe.mu.RUnlock()
	sort.Strings(names)

	result := PolicyResult{Decision: ResultAllow, Policies: []string{}}
	for _, name := range names {
		deny, warn, err := evaluatePolicy(ctx, queries[name], input)
		if err != nil {
			span.RecordError(err)
			return PolicyResult{}, fmt.Errorf("policy %s: %w", name, err)
		}
		if len(deny) > 0 || len(warn) > 0 {
			result.Policies = append(result.Policies, name)
		}
		result.Reasons = append(result.Reasons, deny...)
		result.Warnings = append(result.Warnings, warn...)
	}
	if len(result.Reasons) > 0 {
		result.Decision = ResultDeny
	}

	span.SetAttributes(attribute.String("policy.decision", string(result.Decision)))
	pe.logger.WithContext(ctx).Debug().
		Str("kind", string(input.Spec.Kind)).
		Str("identity", input.Spec.Identity.String()).
		Str("decision", string(result.Decision)).
		Strs("matched_policies", result.Policies).
		Msg("policies evaluated")

	return result, nil
}

// evaluatePolicy returns the sorted deny and warn messages of one policy
func evaluatePolicy(ctx context.Context, query rego.PreparedEvalQuery, input PolicyInput) (deny, warn []string, err error) {
	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, nil, fmt.Errorf("evaluation failed: %w", err)
	}

	for _, res := range results {
		for _, expr := range res.Expressions {
			doc, ok := expr.Value.(map[string]interface{})
			if !ok {
				continue
			}
			deny = append(deny, messages(doc["deny"])...)
			warn = append(warn, messages(doc["warn"])...)
		}
	}
	sort.Strings(deny)
	sort.Strings(warn)
	return deny, warn, nil
}

// messages flattens a rego set of strings; OPA returns sets as slices
func messages(value interface{}) []string {
	items, ok := value.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		} else {
			out = append(out, fmt.Sprint(item))
		}
	}
	return out
}
