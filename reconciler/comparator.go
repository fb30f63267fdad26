package reconciler

import (
	"github.com/yairfalse/vigil/types"
)

// Compare classifies one desired item against the current snapshot
func Compare(current map[string]types.Item, profile ListProfile, desired types.Item) Diff {
	key := desired.Name
	if profile.Key != nil {
		key = profile.Key(desired.Name)
	}

	diff := Diff{Type: DiffNone, Name: desired.Name, Key: key, Desired: desired}

	existing, exists := current[key]
	if exists {
		currentCopy := existing
		diff.Current = &currentCopy
	}

	switch {
	case !exists && desired.Present():
		diff.Type = DiffMissing
	case exists && !desired.Present():
		diff.Type = DiffUnwanted
	case exists && profile.Equal != nil && !profile.Equal(existing, desired):
		diff.Type = DiffDrifted
	}
	return diff
}

// Plan compares every desired item in order without touching the snapshot.
// Duplicate names are each compared against the original snapshot.
func Plan(current map[string]types.Item, profile ListProfile, desired []types.Item) []Diff {
	var diffs []Diff
	for _, item := range desired {
		diff := Compare(current, profile, item)
		if diff.Type != DiffNone {
			diffs = append(diffs, diff)
		}
	}
	return diffs
}

// MacroEqual compares value, password flag and description
func MacroEqual(current, desired types.Item) bool {
	if current.Value != desired.Value {
		return false
	}
	if current.PasswordFlag() != desired.PasswordFlag() {
		return false
	}
	return current.Description == desired.Description
}

// PresenceEqual treats any existing member as matching
func PresenceEqual(current, desired types.Item) bool {
	return true
}
