package storage

import (
	"time"
)

// RunStatus is the result class of one entity reconciliation
type RunStatus string

const (
	StatusChanged   RunStatus = "changed"
	StatusUnchanged RunStatus = "unchanged"
	StatusFailed    RunStatus = "failed"
	StatusDenied    RunStatus = "denied"
)

// RunRecord is the stored result of reconciling one entity in one run.
// It records what happened; it is never read back as remote state.
type RunRecord struct {
	RunID     string        `json:"run_id"`
	Revision  int64         `json:"revision"`
	Kind      string        `json:"kind"`
	Identity  string        `json:"identity"`
	Instance  string        `json:"instance,omitempty"`
	Status    RunStatus     `json:"status"`
	Changed   bool          `json:"changed"`
	Log       []string      `json:"log,omitempty"`
	Error     string        `json:"error,omitempty"`
	Phase     string        `json:"phase,omitempty"`
	DryRun    bool          `json:"dry_run,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// EntityKey returns the index key of the record's entity
func (r RunRecord) EntityKey() string {
	return entityKey(r.Kind, r.Identity)
}

// EntityState is the in-memory summary of an entity's run history
type EntityState struct {
	Kind     string
	Identity string

	FirstSeenRev   int64
	LastSeenRev    int64
	LastChangedRev int64
	LastRunID      string
	LastStatus     RunStatus
	LastError      string

	// ConsecutiveFailures counts failed runs since the last success
	ConsecutiveFailures int
}

// Key returns the index key of the entity
func (e *EntityState) Key() string {
	return entityKey(e.Kind, e.Identity)
}

func entityKey(kind, identity string) string {
	return kind + ":" + identity
}
