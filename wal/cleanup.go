package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CleanupStats tracks the result of a retention sweep
type CleanupStats struct {
	FilesRemoved  int
	BytesFreed    int64
	OldestRemoved time.Time
	NewestRemoved time.Time
}

// Cleanup removes journal files older than the retention period
func Cleanup(dir string, config Config) error {
	_, err := CleanupWithStats(dir, config)
	return err
}

// CleanupWithStats removes old files and reports what was freed
func CleanupWithStats(dir string, config Config) (CleanupStats, error) {
	stats := CleanupStats{}
	if config.RetentionDays <= 0 {
		return stats, nil
	}

	files := listOldWALFiles(dir, config)
	if len(files) == 0 {
		return stats, nil
	}

	stats.FilesRemoved = len(files)
	stats.BytesFreed = calculateTotalSize(files)
	stats.OldestRemoved, stats.NewestRemoved = findTimeRange(files)

	return stats, removeFiles(files)
}

// Cleanup sweeps this journal's directory, never removing the open file
func (w *WAL) Cleanup() (CleanupStats, error) {
	w.mu.Lock()
	current := w.file.Name()
	w.mu.Unlock()

	stats := CleanupStats{}
	if w.config.RetentionDays <= 0 {
		return stats, nil
	}

	var files []string
	for _, f := range listOldWALFiles(w.dir, w.config) {
		if f != current {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return stats, nil
	}

	stats.FilesRemoved = len(files)
	stats.BytesFreed = calculateTotalSize(files)
	stats.OldestRemoved, stats.NewestRemoved = findTimeRange(files)
	return stats, removeFiles(files)
}

func listOldWALFiles(dir string, config Config) []string {
	cutoff := time.Now().AddDate(0, 0, -config.RetentionDays)
	var old []string
	for _, file := range findAllWALFiles(dir, config.FilePrefix) {
		if isOlderThan(file, cutoff) {
			old = append(old, file)
		}
	}
	return old
}

// findAllWALFiles returns journal files in dir, oldest first
func findAllWALFiles(dir, prefix string) []string {
	files, err := filepath.Glob(filepath.Join(dir, prefix+"-*.wal"))
	if err != nil {
		return nil
	}
	return sortFiles(files)
}

func isOlderThan(path string, cutoff time.Time) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.ModTime().Before(cutoff)
}

func removeFiles(files []string) error {
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			return fmt.Errorf("failed to remove %s: %w", file, err)
		}
	}
	return nil
}

func calculateTotalSize(files []string) int64 {
	var total int64
	for _, file := range files {
		if info, err := os.Stat(file); err == nil {
			total += info.Size()
		}
	}
	return total
}

// findTimeRange returns the oldest and newest modification times
func findTimeRange(files []string) (oldest, newest time.Time) {
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		mod := info.ModTime()
		if oldest.IsZero() || mod.Before(oldest) {
			oldest = mod
		}
		if mod.After(newest) {
			newest = mod
		}
	}
	return oldest, newest
}
