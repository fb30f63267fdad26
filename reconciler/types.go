package reconciler

import (
	"context"

	"github.com/yairfalse/vigil/types"
)

// DiffType categorizes how one desired item relates to current state
type DiffType string

const (
	DiffNone     DiffType = "none"     // Nothing to do
	DiffMissing  DiffType = "missing"  // Item should exist but doesn't
	DiffUnwanted DiffType = "unwanted" // Item exists but shouldn't
	DiffDrifted  DiffType = "drifted"  // Item exists but differs
)

// Diff represents a difference between a current and a desired item
type Diff struct {
	Type    DiffType    `json:"type"`
	Name    string      `json:"name"`
	Key     string      `json:"key"`
	Current *types.Item `json:"current,omitempty"`
	Desired types.Item  `json:"desired"`
}

// ItemEqual reports whether a current item already satisfies a desired one
type ItemEqual func(current, desired types.Item) bool

// KeyFunc maps a desired item name to the key of the current snapshot
type KeyFunc func(name string) string

// ListOps are the remote operations a ListReconciler may issue.
// After, when set, runs right after every successful create or delete.
type ListOps struct {
	Create func(ctx context.Context, item types.Item) error
	Update func(ctx context.Context, item types.Item) error
	Delete func(ctx context.Context, item types.Item) error
	After  func(ctx context.Context) error
}

// ListProfile describes one identity-keyed collection
type ListProfile struct {
	Object string // noun used in logs and errors, e.g. "macro"
	Key    KeyFunc
	Equal  ItemEqual
}

// ParamSetter sets one flat parameter remotely
type ParamSetter func(ctx context.Context, name, value string) error
