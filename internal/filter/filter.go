// Package filter selects which manifest entities a run reconciles.
package filter

import (
	"fmt"
	"strings"

	"github.com/yairfalse/vigil/types"
)

// Filter controls which entity kinds are reconciled and which labelled specs are included.
type Filter struct {
	excludeKinds  map[types.Kind]bool
	includeLabels map[string]string
	excludeLabels map[string]string
}

// New creates a new Filter from the provided configuration.
func New(excludeKinds []types.Kind, includeLabels, excludeLabels map[string]string) *Filter {
	excludeMap := make(map[types.Kind]bool)
	for _, k := range excludeKinds {
		excludeMap[k] = true
	}

	return &Filter{
		excludeKinds:  excludeMap,
		includeLabels: includeLabels,
		excludeLabels: excludeLabels,
	}
}

// ShouldReconcileKind returns true if specs of the given kind should be reconciled.
func (f *Filter) ShouldReconcileKind(kind types.Kind) bool {
	return !f.excludeKinds[kind]
}

// ShouldInclude returns true if the spec passes kind and label filters.
func (f *Filter) ShouldInclude(spec types.EntitySpec) bool {
	if !f.ShouldReconcileKind(spec.Kind) {
		return false
	}

	// ALL include labels must match
	for k, v := range f.includeLabels {
		if spec.Labels == nil || spec.Labels[k] != v {
			return false
		}
	}

	// ANY exclude label match excludes
	for k, v := range f.excludeLabels {
		if spec.Labels != nil && spec.Labels[k] == v {
			return false
		}
	}

	return true
}

// FilterSpecs returns only specs that pass the filter, in their original order.
func (f *Filter) FilterSpecs(specs []types.EntitySpec) []types.EntitySpec {
	if f.IsEmpty() {
		return specs
	}

	filtered := make([]types.EntitySpec, 0, len(specs))
	for _, s := range specs {
		if f.ShouldInclude(s) {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

// IsEmpty returns true if no filters are configured.
func (f *Filter) IsEmpty() bool {
	return len(f.excludeKinds) == 0 && len(f.includeLabels) == 0 && len(f.excludeLabels) == 0
}

// ParseSelector parses "k=v,k2=v2" into a label map. An empty selector yields nil.
func ParseSelector(selector string) (map[string]string, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil, nil
	}

	labels := make(map[string]string)
	for _, pair := range strings.Split(selector, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid selector %q (want key=value)", pair)
		}
		labels[k] = strings.TrimSpace(v)
	}
	return labels, nil
}

// ParseKinds validates a list of kind names.
func ParseKinds(names []string) ([]types.Kind, error) {
	kinds := make([]types.Kind, 0, len(names))
	for _, n := range names {
		k := types.Kind(strings.ToLower(strings.TrimSpace(n)))
		if !k.Valid() {
			return nil, fmt.Errorf("unknown kind %q", n)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
