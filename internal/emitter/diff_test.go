package emitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/vigil/orchestrator"
	"github.com/yairfalse/vigil/storage"
	"github.com/yairfalse/vigil/types"
)

func makeResult(kind types.Kind, identity string, status storage.RunStatus) orchestrator.EntityResult {
	return orchestrator.EntityResult{
		Kind:     kind,
		Identity: identity,
		Instance: "Central",
		Status:   status,
	}
}

func TestDiffTracker_FirstCycle(t *testing.T) {
	tracker := NewDiffTracker()
	results := []orchestrator.EntityResult{
		makeResult(types.KindHost, "web01", storage.StatusChanged),
	}

	assert.Nil(t, tracker.ComputeDiff(results), "first cycle should return nil")
	tracker.Update(results)

	diffs := tracker.ComputeDiff(results)
	require.NotNil(t, diffs)
	assert.Empty(t, diffs)
}

func TestDiffTracker_Transitions(t *testing.T) {
	tests := []struct {
		name     string
		previous orchestrator.EntityResult
		current  orchestrator.EntityResult
		want     DiffType
	}{
		{
			name:     "changed to failed",
			previous: makeResult(types.KindHost, "web01", storage.StatusChanged),
			current:  makeResult(types.KindHost, "web01", storage.StatusFailed),
			want:     DiffRegressed,
		},
		{
			name:     "unchanged to denied",
			previous: makeResult(types.KindCommand, "check_http", storage.StatusUnchanged),
			current:  makeResult(types.KindCommand, "check_http", storage.StatusDenied),
			want:     DiffRegressed,
		},
		{
			name:     "failed to unchanged",
			previous: makeResult(types.KindHost, "web01", storage.StatusFailed),
			current:  makeResult(types.KindHost, "web01", storage.StatusUnchanged),
			want:     DiffRecovered,
		},
		{
			name:     "instance moved",
			previous: makeResult(types.KindHost, "web01", storage.StatusUnchanged),
			current: orchestrator.EntityResult{
				Kind: types.KindHost, Identity: "web01", Instance: "Edge", Status: storage.StatusChanged,
			},
			want: DiffMoved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewDiffTracker()
			tracker.Update([]orchestrator.EntityResult{tt.previous})

			diffs := tracker.ComputeDiff([]orchestrator.EntityResult{tt.current})
			require.Len(t, diffs, 1)
			assert.Equal(t, tt.want, diffs[0].Type)
			require.NotNil(t, diffs[0].Previous)
			assert.Equal(t, tt.previous.Status, diffs[0].Previous.Status)
		})
	}
}

func TestDiffTracker_ChangedToUnchangedIsQuiet(t *testing.T) {
	tracker := NewDiffTracker()
	tracker.Update([]orchestrator.EntityResult{makeResult(types.KindHost, "web01", storage.StatusChanged)})

	diffs := tracker.ComputeDiff([]orchestrator.EntityResult{makeResult(types.KindHost, "web01", storage.StatusUnchanged)})
	assert.Empty(t, diffs, "converging is not a transition")
}

func TestDiffTracker_AddedAndRemoved(t *testing.T) {
	tracker := NewDiffTracker()
	tracker.Update([]orchestrator.EntityResult{
		makeResult(types.KindHost, "web01", storage.StatusUnchanged),
		makeResult(types.KindHost, "web02", storage.StatusUnchanged),
	})

	diffs := tracker.ComputeDiff([]orchestrator.EntityResult{
		makeResult(types.KindHost, "web01", storage.StatusUnchanged),
		makeResult(types.KindService, "web01/Ping", storage.StatusChanged),
	})

	require.Len(t, diffs, 2)
	assert.Equal(t, DiffRemoved, diffs[0].Type)
	assert.Equal(t, "web02", diffs[0].Entity.Identity)
	assert.Equal(t, DiffAdded, diffs[1].Type)
	assert.Equal(t, "web01/Ping", diffs[1].Entity.Identity)
	assert.Nil(t, diffs[1].Previous)
}

func TestDiffTracker_SameIdentityDifferentKinds(t *testing.T) {
	tracker := NewDiffTracker()
	tracker.Update([]orchestrator.EntityResult{
		makeResult(types.KindHost, "ping", storage.StatusUnchanged),
		makeResult(types.KindCommand, "ping", storage.StatusUnchanged),
	})

	diffs := tracker.ComputeDiff([]orchestrator.EntityResult{
		makeResult(types.KindHost, "ping", storage.StatusUnchanged),
		makeResult(types.KindCommand, "ping", storage.StatusFailed),
	})

	require.Len(t, diffs, 1)
	assert.Equal(t, types.KindCommand, diffs[0].Entity.Kind)
	assert.Equal(t, DiffRegressed, diffs[0].Type)
}
