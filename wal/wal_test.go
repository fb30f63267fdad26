package wal

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testOp struct {
	Action string `json:"action"`
	Target string `json:"target"`
}

func readAll(t *testing.T, dir string) []*Entry {
	t.Helper()
	var entries []*Entry
	err := Replay(dir, time.Time{}, func(e *Entry) error {
		entries = append(entries, e)
		return nil
	})
	require.NoError(t, err)
	return entries
}

func TestWAL_AppendAndRead(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	require.NoError(t, err)

	op := testOp{Action: "create", Target: "web01"}
	require.NoError(t, w.Append(EntryIssued, "web01", op))
	require.NoError(t, w.Append(EntryApplied, "web01", op))
	require.NoError(t, w.AppendError(EntryFailed, "web01", op, errors.New("Object not found")))
	require.NoError(t, w.Close())

	files, err := filepath.Glob(filepath.Join(dir, "vigil-*.wal"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	reader, err := NewReader(files[0])
	require.NoError(t, err)
	defer func() { _ = reader.Close() }()

	want := []EntryType{EntryIssued, EntryApplied, EntryFailed}
	for i, typ := range want {
		entry, err := reader.Next()
		require.NoError(t, err)
		assert.Equal(t, typ, entry.Type)
		assert.Equal(t, int64(i+1), entry.Sequence)
		assert.Equal(t, "web01", entry.Target)

		var got testOp
		require.NoError(t, json.Unmarshal(entry.Data, &got))
		assert.Equal(t, op, got)
	}

	_, err = reader.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestWAL_ErrorIsRecorded(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, w.AppendError(EntryFailed, "web01", nil, errors.New("boom")))
	require.NoError(t, w.Close())

	entries := readAll(t, dir)
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0].Error)
}

func TestWAL_SequenceContinuesAcrossOpens(t *testing.T) {
	dir := t.TempDir()

	w1, err := Open(dir)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, w1.Append(EntryIssued, "a", nil))
	}
	require.NoError(t, w1.Close())

	w2, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(3), w2.sequence)
	require.NoError(t, w2.Append(EntryIssued, "b", nil))
	require.NoError(t, w2.Close())

	entries := readAll(t, dir)
	require.Len(t, entries, 4)
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Sequence, "entries replay in order")
	}
}

func TestWAL_Rotation(t *testing.T) {
	dir := t.TempDir()
	config := DefaultConfig()
	config.MaxFileSize = 300

	w, err := OpenWithConfig(dir, config)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		require.NoError(t, w.Append(EntryApplied, "web01", testOp{Action: "set_attribute", Target: "web01"}))
	}
	assert.Equal(t, int64(20), w.sequence)
	require.NoError(t, w.Close())

	files := findAllWALFiles(dir, config.FilePrefix)
	assert.Greater(t, len(files), 1)
	assert.Len(t, readAll(t, dir), 20)
}

func TestWAL_NoRotationBelowLimit(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	for i := 0; i < 10; i++ {
		require.NoError(t, w.Append(EntryIssued, "web01", nil))
	}
	assert.Len(t, w.listWALFiles(), 1)
}

func TestReplay_Since(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, w.Append(EntryIssued, "old", nil))
	require.NoError(t, w.Close())

	cutoff := time.Now().UTC()
	time.Sleep(10 * time.Millisecond)

	w, err = Open(dir)
	require.NoError(t, err)
	require.NoError(t, w.Append(EntryIssued, "new", nil))
	require.NoError(t, w.Close())

	var targets []string
	err = Replay(dir, cutoff, func(e *Entry) error {
		targets = append(targets, e.Target)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, targets)
}

func TestReplay_HandlerErrorStops(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, w.Append(EntryIssued, "a", nil))
	require.NoError(t, w.Append(EntryIssued, "b", nil))
	require.NoError(t, w.Close())

	stop := errors.New("stop")
	calls := 0
	err = Replay(dir, time.Time{}, func(*Entry) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestReplay_CorruptLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vigil-20260101-000000-000000000001.wal")
	require.NoError(t, os.WriteFile(path, []byte("not json\n"), 0600))

	err := Replay(dir, time.Time{}, func(*Entry) error { return nil })
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, w.Append(EntryIssued, "web01", nil))
	require.NoError(t, w.Append(EntryApplied, "web01", nil))
	require.NoError(t, w.Append(EntryIssued, "web02", nil))
	require.NoError(t, w.AppendError(EntryFailed, "web02", nil, errors.New("x")))

	stats := w.GetStats()
	assert.Equal(t, 1, stats.TotalFiles)
	assert.Equal(t, int64(1), stats.FirstSequence)
	assert.Equal(t, int64(4), stats.LastSequence)
	assert.Equal(t, int64(4), stats.SequenceCount)
	assert.Equal(t, 2, stats.EntriesByType[EntryIssued])
	assert.Equal(t, 1, stats.EntriesByType[EntryFailed])
	assert.Positive(t, stats.CurrentFileSize)
	require.NoError(t, w.Close())

	fromDir := GetStatsFromDir(dir, Config{})
	assert.Equal(t, int64(4), fromDir.SequenceCount)
	assert.Equal(t, 1, fromDir.EntriesByType[EntryApplied])
}

func TestStats_EmptyDir(t *testing.T) {
	stats := GetStatsFromDir(t.TempDir(), DefaultConfig())
	assert.Zero(t, stats.TotalFiles)
	assert.Zero(t, stats.SequenceCount)
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "vigil-20200101-000000-000000000001.wal")
	fresh := filepath.Join(dir, "vigil-20260101-000000-000000000002.wal")
	require.NoError(t, os.WriteFile(old, []byte("{}\n"), 0600))
	require.NoError(t, os.WriteFile(fresh, []byte("{}\n"), 0600))

	past := time.Now().AddDate(0, 0, -40)
	require.NoError(t, os.Chtimes(old, past, past))

	stats, err := CleanupWithStats(dir, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesRemoved)
	assert.Equal(t, int64(3), stats.BytesFreed)

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

func TestCleanup_ZeroRetentionKeepsEverything(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "vigil-20200101-000000-000000000001.wal")
	require.NoError(t, os.WriteFile(old, []byte("{}\n"), 0600))
	past := time.Now().AddDate(-1, 0, 0)
	require.NoError(t, os.Chtimes(old, past, past))

	stats, err := CleanupWithStats(dir, Config{FilePrefix: "vigil"})
	require.NoError(t, err)
	assert.Zero(t, stats.FilesRemoved)
}

func TestWAL_CleanupKeepsOpenFile(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()
	require.NoError(t, w.Append(EntryIssued, "web01", nil))

	past := time.Now().AddDate(0, 0, -60)
	require.NoError(t, os.Chtimes(w.file.Name(), past, past))

	stats, err := w.Cleanup()
	require.NoError(t, err)
	assert.Zero(t, stats.FilesRemoved)

	health := w.GetHealth()
	assert.True(t, health.NeedsCleanup)
	assert.False(t, health.Healthy)
}
