package orchestrator

import (
	"time"

	"github.com/yairfalse/vigil/storage"
	"github.com/yairfalse/vigil/types"
)

// EntityResult is the outcome of one manifest entry within a cycle
type EntityResult struct {
	Kind     types.Kind        `json:"kind"`
	Identity string            `json:"identity"`
	Instance string            `json:"instance"`
	Status   storage.RunStatus `json:"status"`
	Changed  bool              `json:"changed"`
	Log      []string          `json:"log,omitempty"`
	Error    string            `json:"error,omitempty"`
	Phase    types.Phase       `json:"phase,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// CycleResult contains the results of a reconciliation cycle
type CycleResult struct {
	RunID     string         `json:"run_id"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	Duration  time.Duration  `json:"duration"`
	DryRun    bool           `json:"dry_run,omitempty"`
	Entities  []EntityResult `json:"entities"`

	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
	Denied    int `json:"denied"`
}

// Success reports whether every entity converged or was already converged
func (r *CycleResult) Success() bool {
	return r.Failed == 0 && r.Denied == 0
}

// Converged reports whether the cycle made no change and hit no error.
// An external loop re-runs the manifest until this holds.
func (r *CycleResult) Converged() bool {
	return r.Success() && r.Changed == 0
}

func (r *CycleResult) count(status storage.RunStatus) {
	switch status {
	case storage.StatusChanged:
		r.Changed++
	case storage.StatusUnchanged:
		r.Unchanged++
	case storage.StatusFailed:
		r.Failed++
	case storage.StatusDenied:
		r.Denied++
	}
}
