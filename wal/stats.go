package wal

import (
	"errors"
	"io"
	"path/filepath"
	"time"
)

// Stats summarizes a journal directory
type Stats struct {
	TotalFiles      int
	TotalSizeBytes  int64
	OldestFile      time.Time
	NewestFile      time.Time
	CurrentFileSize int64

	FirstSequence int64
	LastSequence  int64
	SequenceCount int64

	// EntriesByType counts issued, applied, failed and skipped entries
	EntriesByType map[EntryType]int
	WritesPerFile map[string]int
}

// GetStats returns statistics for the open journal
func (w *WAL) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := collectStats(w.listWALFiles())
	stats.CurrentFileSize = w.getCurrentFileSize()
	return stats
}

// GetStatsFromDir returns statistics for a journal directory without opening it
func GetStatsFromDir(dir string, config Config) Stats {
	if config.FilePrefix == "" {
		config.FilePrefix = DefaultConfig().FilePrefix
	}
	return collectStats(findAllWALFiles(dir, config.FilePrefix))
}

func collectStats(files []string) Stats {
	stats := Stats{
		EntriesByType: make(map[EntryType]int),
		WritesPerFile: make(map[string]int),
	}
	stats.TotalFiles = len(files)
	if len(files) == 0 {
		return stats
	}

	stats.TotalSizeBytes = calculateTotalSize(files)
	stats.OldestFile, stats.NewestFile = findTimeRange(files)

	for _, file := range files {
		count := scanFile(file, func(entry *Entry) {
			if stats.FirstSequence == 0 || entry.Sequence < stats.FirstSequence {
				stats.FirstSequence = entry.Sequence
			}
			if entry.Sequence > stats.LastSequence {
				stats.LastSequence = entry.Sequence
			}
			stats.EntriesByType[entry.Type]++
		})
		stats.WritesPerFile[filepath.Base(file)] = count
	}

	if stats.LastSequence >= stats.FirstSequence && stats.LastSequence > 0 {
		stats.SequenceCount = stats.LastSequence - stats.FirstSequence + 1
	}
	return stats
}

// scanFile visits every readable entry of a file, skipping corrupted lines,
// and returns how many entries it saw
func scanFile(path string, visit func(*Entry)) int {
	reader, err := NewReader(path)
	if err != nil {
		return 0
	}
	defer func() { _ = reader.Close() }()

	count := 0
	for {
		entry, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return count
		}
		if err != nil {
			if reader.scanner.Err() != nil {
				return count
			}
			continue
		}
		count++
		visit(entry)
	}
}

func findLastSequenceInFiles(files []string) int64 {
	var maxSeq int64
	for _, file := range files {
		scanFile(file, func(entry *Entry) {
			if entry.Sequence > maxSeq {
				maxSeq = entry.Sequence
			}
		})
	}
	return maxSeq
}

func (w *WAL) getCurrentFileSize() int64 {
	if w.file == nil {
		return 0
	}
	info, err := w.file.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

// HealthStatus reports journal conditions worth surfacing on /health
type HealthStatus struct {
	Healthy          bool
	DiskUsagePercent float64
	OldestFileAge    time.Duration
	NeedsRotation    bool
	NeedsCleanup     bool
	Issues           []string
}

// GetHealth returns the journal health
func (w *WAL) GetHealth() HealthStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	health := HealthStatus{Issues: []string{}}

	health.DiskUsagePercent = float64(w.getCurrentFileSize()) / float64(w.config.MaxFileSize) * 100
	if health.DiskUsagePercent > 90 {
		health.Issues = append(health.Issues, "current file >90% of max size")
	}

	if files := w.listWALFiles(); len(files) > 0 && w.config.RetentionDays > 0 {
		oldest, _ := findTimeRange(files)
		health.OldestFileAge = time.Since(oldest)
		if health.OldestFileAge > time.Duration(w.config.RetentionDays)*24*time.Hour {
			health.NeedsCleanup = true
			health.Issues = append(health.Issues, "old files exceed retention period")
		}
	}

	if w.shouldRotate() {
		health.NeedsRotation = true
		health.Issues = append(health.Issues, "file rotation needed")
	}

	health.Healthy = len(health.Issues) == 0
	return health
}
