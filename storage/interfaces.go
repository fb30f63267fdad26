package storage

import (
	"context"
)

// HistoryWriter records reconciliation results
type HistoryWriter interface {
	RecordRun(record RunRecord) (revision int64, err error)
	RecordRunBatch(records []RunRecord) (revision int64, err error)
}

// HistoryReader queries reconciliation results
type HistoryReader interface {
	GetEntityState(kind, identity string) (*EntityState, error)
	ListEntities() ([]*EntityState, error)
	History(kind, identity string, limit int) ([]RunRecord, error)
	RunRecords(runID string) ([]RunRecord, error)
}

// HistoryStorage combines read and write for run history
type HistoryStorage interface {
	HistoryWriter
	HistoryReader
	CurrentRevision() int64
}

// Compactor handles storage compaction
type Compactor interface {
	Compact(keepRevisions int64) error
	CompactWithContext(ctx context.Context, keepRevisions int64) error
}

// StorageStats provides operational metrics
type StorageStats interface {
	Stats() (entityCount int, currentRev int64, dbSizeBytes int64)
}

// Lifecycle manages storage lifecycle
type Lifecycle interface {
	Close() error
}

// Storage is the complete storage interface combining all capabilities
type Storage interface {
	HistoryStorage
	Compactor
	StorageStats
	Lifecycle
}
