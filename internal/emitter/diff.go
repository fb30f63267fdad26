package emitter

import (
	"sort"
	"sync"

	"github.com/yairfalse/vigil/orchestrator"
	"github.com/yairfalse/vigil/storage"
)

// DiffType classifies how an entity's result moved between cycles
type DiffType string

const (
	// DiffAdded is an entity seen for the first time
	DiffAdded DiffType = "added"
	// DiffRemoved is an entity no longer in the manifest
	DiffRemoved DiffType = "removed"
	// DiffRegressed is an entity that started failing or being denied
	DiffRegressed DiffType = "regressed"
	// DiffRecovered is an entity that stopped failing
	DiffRecovered DiffType = "recovered"
	// DiffMoved is an entity whose target poller changed
	DiffMoved DiffType = "moved"
)

// EntityDiff is one transition between two cycles
type EntityDiff struct {
	Type     DiffType
	Entity   orchestrator.EntityResult
	Previous *orchestrator.EntityResult
}

// DiffTracker tracks entity results between cycles and detects transitions.
type DiffTracker struct {
	mu          sync.RWMutex
	previous    map[string]orchestrator.EntityResult
	initialized bool
}

// NewDiffTracker creates a new diff tracker.
func NewDiffTracker() *DiffTracker {
	return &DiffTracker{
		previous: make(map[string]orchestrator.EntityResult),
	}
}

// ComputeDiff compares current results against the previous cycle.
// Returns nil on the first cycle (baseline establishment).
// Returns an empty slice if nothing moved.
func (d *DiffTracker) ComputeDiff(current []orchestrator.EntityResult) []EntityDiff {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.initialized {
		return nil
	}

	currentMap := indexResults(current)
	diffs := make([]EntityDiff, 0)
	diffs = append(diffs, d.findRemovedAndChanged(currentMap)...)
	diffs = append(diffs, d.findAdded(currentMap)...)

	sort.Slice(diffs, func(i, j int) bool {
		return resultKey(diffs[i].Entity) < resultKey(diffs[j].Entity)
	})
	return diffs
}

func resultKey(r orchestrator.EntityResult) string {
	return string(r.Kind) + ":" + r.Identity
}

func indexResults(results []orchestrator.EntityResult) map[string]orchestrator.EntityResult {
	m := make(map[string]orchestrator.EntityResult, len(results))
	for _, r := range results {
		m[resultKey(r)] = r
	}
	return m
}

func (d *DiffTracker) findRemovedAndChanged(currentMap map[string]orchestrator.EntityResult) []EntityDiff {
	var diffs []EntityDiff
	for key, prev := range d.previous {
		prevCopy := prev
		curr, exists := currentMap[key]
		if !exists {
			diffs = append(diffs, EntityDiff{Type: DiffRemoved, Entity: prev, Previous: &prevCopy})
			continue
		}
		if t, moved := transition(prev, curr); moved {
			diffs = append(diffs, EntityDiff{Type: t, Entity: curr, Previous: &prevCopy})
		}
	}
	return diffs
}

func (d *DiffTracker) findAdded(currentMap map[string]orchestrator.EntityResult) []EntityDiff {
	var diffs []EntityDiff
	for key, curr := range currentMap {
		if _, exists := d.previous[key]; !exists {
			diffs = append(diffs, EntityDiff{Type: DiffAdded, Entity: curr})
		}
	}
	return diffs
}

// Update stores the current results as the baseline for the next cycle.
func (d *DiffTracker) Update(current []orchestrator.EntityResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.previous = indexResults(current)
	d.initialized = true
}

// transition reports the most significant move between two results
func transition(prev, curr orchestrator.EntityResult) (DiffType, bool) {
	wasBad, isBad := failing(prev.Status), failing(curr.Status)
	switch {
	case !wasBad && isBad:
		return DiffRegressed, true
	case wasBad && !isBad:
		return DiffRecovered, true
	case prev.Instance != curr.Instance:
		return DiffMoved, true
	}
	return "", false
}

func failing(status storage.RunStatus) bool {
	return status == storage.StatusFailed || status == storage.StatusDenied
}
