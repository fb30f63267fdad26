package wal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// EntryType defines the type of journal entry
type EntryType string

const (
	// EntryIssued is written before a mutating remote call
	EntryIssued EntryType = "issued"
	// EntryApplied is written after the remote accepted the call
	EntryApplied EntryType = "applied"
	// EntryFailed is written when the remote rejected the call
	EntryFailed EntryType = "failed"
	// EntrySkipped is written for calls suppressed by dry-run
	EntrySkipped EntryType = "skipped"
)

// Entry represents a single journal entry
type Entry struct {
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
	Type      EntryType       `json:"type"`
	Target    string          `json:"target,omitempty"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error,omitempty"`
}

// Config controls file naming, rotation and retention
type Config struct {
	FilePrefix    string
	MaxFileSize   int64
	RetentionDays int
}

// DefaultConfig returns the journal defaults
func DefaultConfig() Config {
	return Config{
		FilePrefix:    "vigil",
		MaxFileSize:   10 * 1024 * 1024,
		RetentionDays: 30,
	}
}

// WAL is an append-only journal of remote operations
type WAL struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	sequence int64
	dir      string
	config   Config
}

// Open creates or opens a journal in dir with the default config
func Open(dir string) (*WAL, error) {
	return OpenWithConfig(dir, DefaultConfig())
}

// OpenWithConfig creates or opens a journal in dir. The sequence continues
// from the highest one found in existing files.
func OpenWithConfig(dir string, config Config) (*WAL, error) {
	if config.FilePrefix == "" {
		config.FilePrefix = DefaultConfig().FilePrefix
	}
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = DefaultConfig().MaxFileSize
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	w := &WAL{dir: dir, config: config}
	w.loadSequence()

	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

// Dir returns the journal directory
func (w *WAL) Dir() string {
	return w.dir
}

// Close flushes and closes the journal
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}

// Append adds an entry to the journal
func (w *WAL) Append(entryType EntryType, target string, data interface{}) error {
	return w.append(entryType, target, data, nil)
}

// AppendError adds an entry carrying the error that ended the operation
func (w *WAL) AppendError(entryType EntryType, target string, data interface{}, errToLog error) error {
	return w.append(entryType, target, data, errToLog)
}

func (w *WAL) append(entryType EntryType, target string, data interface{}, errToLog error) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.shouldRotate() {
		if err := w.rotate(); err != nil {
			return err
		}
	}

	w.sequence++
	entry := Entry{
		Timestamp: time.Now().UTC(),
		Sequence:  w.sequence,
		Type:      entryType,
		Target:    target,
		Data:      jsonData,
	}
	if errToLog != nil {
		entry.Error = errToLog.Error()
	}

	return w.writeEntry(entry)
}

// writeEntry writes a single entry and syncs it to disk
func (w *WAL) writeEntry(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	return w.file.Sync()
}

// openFile starts a new journal file named after the time and next sequence
func (w *WAL) openFile() error {
	filename := fmt.Sprintf("%s-%s-%012d.wal", w.config.FilePrefix, time.Now().UTC().Format("20060102-150405"), w.sequence+1)
	path := filepath.Join(w.dir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600) // #nosec G304 -- path is built from the journal dir
	if err != nil {
		return fmt.Errorf("failed to open WAL file: %w", err)
	}
	w.file = file
	w.writer = bufio.NewWriter(file)
	return nil
}

func (w *WAL) shouldRotate() bool {
	return w.getCurrentFileSize() >= w.config.MaxFileSize
}

func (w *WAL) rotate() error {
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush before rotation: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close WAL file: %w", err)
	}
	return w.openFile()
}

// loadSequence continues numbering from existing files
func (w *WAL) loadSequence() {
	w.sequence = findLastSequenceInFiles(w.listWALFiles())
}

// listWALFiles returns journal files oldest first
func (w *WAL) listWALFiles() []string {
	return findAllWALFiles(w.dir, w.config.FilePrefix)
}

// Reader reads entries from one journal file
type Reader struct {
	scanner *bufio.Scanner
	file    *os.File
}

// NewReader creates a reader for the specified file
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path) // #nosec G304 -- journal files are listed from a configured dir
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{scanner: scanner, file: file}, nil
}

// Next reads the next entry, returning io.EOF at the end of the file
func (r *Reader) Next() (*Entry, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	var entry Entry
	if err := json.Unmarshal(r.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return &entry, nil
}

// Close closes the reader
func (r *Reader) Close() error {
	return r.file.Close()
}

// Replay calls handler for every entry written after since, oldest first
func Replay(dir string, since time.Time, handler func(*Entry) error) error {
	for _, file := range findAllWALFiles(dir, DefaultConfig().FilePrefix) {
		if err := replayFile(file, since, handler); err != nil {
			return err
		}
	}
	return nil
}

func replayFile(path string, since time.Time, handler func(*Entry) error) error {
	reader, err := NewReader(path)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	for {
		entry, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if entry.Timestamp.After(since) {
			if err := handler(entry); err != nil {
				return err
			}
		}
	}
}

// sortFiles orders journal files by name, which encodes time and sequence
func sortFiles(files []string) []string {
	sort.Strings(files)
	return files
}
