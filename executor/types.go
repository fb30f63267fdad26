package executor

import (
	"time"

	"github.com/yairfalse/vigil/types"
)

// ExecutionStatus tracks the status of one journaled operation
type ExecutionStatus string

const (
	StatusApplied ExecutionStatus = "applied"
	StatusFailed  ExecutionStatus = "failed"
	StatusSkipped ExecutionStatus = "skipped"
)

// ExecutorOptions configure executor behavior
type ExecutorOptions struct {
	// DryRun journals mutating calls as skipped instead of issuing them
	DryRun bool `json:"dry_run"`
}

// OperationResult is the journaled outcome of one mutating call
type OperationResult struct {
	Operation types.Operation `json:"operation"`
	Status    ExecutionStatus `json:"status"`
	Duration  time.Duration   `json:"duration"`
	Error     string          `json:"error,omitempty"`
}

// Counts summarizes the operations seen by an executor
type Counts struct {
	Applied int `json:"applied"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Total returns the number of operations seen
func (c Counts) Total() int {
	return c.Applied + c.Failed + c.Skipped
}
