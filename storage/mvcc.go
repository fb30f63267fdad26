package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/btree"
	"go.etcd.io/bbolt"
)

// Bucket names in bbolt
var (
	bucketRuns = []byte("runs")
	bucketMeta = []byte("meta")

	keyCurrentRevision = []byte("current_revision")
)

// MVCCStorage keeps every run record under its own revision
type MVCCStorage struct {
	mu sync.RWMutex

	// In-memory per-entity summary, rebuilt from disk on open
	index *btree.BTreeG[*EntityState]

	// On-disk storage
	db *bbolt.DB

	// Current revision number
	currentRev int64

	// Path to storage directory
	dir string
}

var _ Storage = (*MVCCStorage)(nil)

// openTimeout bounds the wait for the file lock held by another process
const openTimeout = 2 * time.Second

// NewMVCCStorage opens or creates the history database in dir
func NewMVCCStorage(dir string) (*MVCCStorage, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(dir, "vigil.db"), 0600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketRuns, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	storage := &MVCCStorage{
		index: btree.NewG[*EntityState](32, func(a, b *EntityState) bool {
			return a.Key() < b.Key()
		}),
		db:  db,
		dir: dir,
	}

	if err := storage.loadRevision(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := storage.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return storage, nil
}

// Close closes the storage
func (s *MVCCStorage) Close() error {
	return s.db.Close()
}

// RecordRun stores one record under a new revision
func (s *MVCCStorage) RecordRun(record RunRecord) (int64, error) {
	return s.RecordRunBatch([]RunRecord{record})
}

// RecordRunBatch stores records atomically, one revision each, and returns
// the last revision written
func (s *MVCCStorage) RecordRunBatch(records []RunRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(records) == 0 {
		return s.currentRev, nil
	}

	rev := s.currentRev
	stored := make([]RunRecord, 0, len(records))

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketRuns)
		for _, record := range records {
			if record.Kind == "" || record.Identity == "" {
				return fmt.Errorf("run record needs kind and identity")
			}
			rev++
			record.Revision = rev

			value, err := json.Marshal(record)
			if err != nil {
				return err
			}
			if err := bucket.Put(makeRunKey(rev, record.EntityKey()), value); err != nil {
				return err
			}
			stored = append(stored, record)
		}
		return tx.Bucket(bucketMeta).Put(keyCurrentRevision, int64ToBytes(rev))
	})
	if err != nil {
		return 0, fmt.Errorf("failed to record run: %w", err)
	}

	s.currentRev = rev
	for _, record := range stored {
		s.updateIndex(record)
	}
	return rev, nil
}

// GetEntityState returns the history summary of one entity
func (s *MVCCStorage) GetEntityState(kind, identity string) (*EntityState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	existing, found := s.index.Get(&EntityState{Kind: kind, Identity: identity})
	if !found {
		return nil, fmt.Errorf("entity %s %s not found", kind, identity)
	}
	state := *existing
	return &state, nil
}

// ListEntities returns every entity summary ordered by kind and identity
func (s *MVCCStorage) ListEntities() ([]*EntityState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*EntityState, 0, s.index.Len())
	s.index.Ascend(func(state *EntityState) bool {
		copied := *state
		results = append(results, &copied)
		return true
	})
	return results, nil
}

// History returns an entity's records, newest first. limit <= 0 means all.
func (s *MVCCStorage) History(kind, identity string, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := entityKey(kind, identity)
	var results []RunRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if _, key, ok := parseRunKey(k); !ok || key != want {
				continue
			}
			var record RunRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("failed to decode run record %s: %w", k, err)
			}
			results = append(results, record)
			if limit > 0 && len(results) >= limit {
				return nil
			}
		}
		return nil
	})
	return results, err
}

// RunRecords returns every record written by one run, in revision order
func (s *MVCCStorage) RunRecords(runID string) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []RunRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(k, v []byte) error {
			var record RunRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("failed to decode run record %s: %w", k, err)
			}
			if record.RunID == runID {
				results = append(results, record)
			}
			return nil
		})
	})
	return results, err
}

// CurrentRevision returns the current revision number
func (s *MVCCStorage) CurrentRevision() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRev
}

// Compact removes records older than the last keepRevisions revisions
func (s *MVCCStorage) Compact(keepRevisions int64) error {
	return s.CompactWithContext(context.Background(), keepRevisions)
}

// CompactWithContext is Compact with cancellation between deletions
func (s *MVCCStorage) CompactWithContext(ctx context.Context, keepRevisions int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.currentRev - keepRevisions
	if cutoff <= 0 {
		return nil
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketRuns)
		c := bucket.Cursor()

		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			rev, _, ok := parseRunKey(k)
			if !ok || rev > cutoff {
				break
			}
			toDelete = append(toDelete, append([]byte(nil), k...))
		}

		for _, key := range toDelete {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := bucket.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Stats reports entity count, revision and database size
func (s *MVCCStorage) Stats() (entityCount int, currentRev int64, dbSizeBytes int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_ = s.db.View(func(tx *bbolt.Tx) error {
		dbSizeBytes = tx.Size()
		return nil
	})
	return s.index.Len(), s.currentRev, dbSizeBytes
}

func (s *MVCCStorage) updateIndex(record RunRecord) {
	existing, found := s.index.Get(&EntityState{Kind: record.Kind, Identity: record.Identity})
	if !found {
		existing = &EntityState{
			Kind:         record.Kind,
			Identity:     record.Identity,
			FirstSeenRev: record.Revision,
		}
	}

	existing.LastSeenRev = record.Revision
	existing.LastRunID = record.RunID
	existing.LastStatus = record.Status
	existing.LastError = record.Error
	if record.Changed {
		existing.LastChangedRev = record.Revision
	}
	if record.Status == StatusFailed {
		existing.ConsecutiveFailures++
	} else {
		existing.ConsecutiveFailures = 0
	}

	s.index.ReplaceOrInsert(existing)
}

func (s *MVCCStorage) loadRevision() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyCurrentRevision)
		if data != nil {
			s.currentRev = bytesToInt64(data)
		}
		return nil
	})
}

// rebuildIndex replays every stored record in revision order
func (s *MVCCStorage) rebuildIndex() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(k, v []byte) error {
			var record RunRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("failed to decode run record %s: %w", k, err)
			}
			s.updateIndex(record)
			return nil
		})
	})
}

// makeRunKey zero-pads the revision so keys sort by revision
func makeRunKey(rev int64, entity string) []byte {
	return []byte(fmt.Sprintf("%016d:%s", rev, entity))
}

func parseRunKey(key []byte) (int64, string, bool) {
	revPart, entity, ok := strings.Cut(string(key), ":")
	if !ok {
		return 0, "", false
	}
	rev, err := strconv.ParseInt(revPart, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return rev, entity, true
}

func int64ToBytes(n int64) []byte {
	return []byte(strconv.FormatInt(n, 10))
}

func bytesToInt64(b []byte) int64 {
	n, _ := strconv.ParseInt(string(b), 10, 64)
	return n
}
