package policy

import (
	"time"

	"github.com/yairfalse/vigil/types"
)

// Result of admitting a spec
type Result string

const (
	ResultAllow Result = "allow"
	ResultDeny  Result = "deny"
)

// PolicyInput is the document policies see as `input`
type PolicyInput struct {
	Spec      types.EntitySpec `json:"spec"`
	Instance  string           `json:"instance"`
	History   *HistoryContext  `json:"history,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// HistoryContext summarizes earlier runs of the same entity
type HistoryContext struct {
	LastStatus          string `json:"last_status"`
	LastRunID           string `json:"last_run_id"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	Runs                int64  `json:"runs"`
}

// PolicyResult is the aggregate verdict of every loaded policy
type PolicyResult struct {
	Decision Result   `json:"decision"`
	Reasons  []string `json:"reasons,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	// Policies lists the policies that produced a deny or warn message
	Policies []string `json:"policies"`
}

// Denied reports whether any policy vetoed the spec
func (r PolicyResult) Denied() bool {
	return r.Decision == ResultDeny
}
