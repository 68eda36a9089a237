// Package journal writes progress updates to an append-only JSONL event log,
// one JSON object per line, so long scans can be followed with tail -f or
// inspected afterwards.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"dupaudit/pkg/progress"
)

// Entry represents a single progress event logged to the journal.
type Entry struct {
	Timestamp  time.Time `json:"ts"`
	Stage      string    `json:"stage"`
	Completed  int       `json:"completed"`
	Total      int       `json:"total"`
	ETASeconds float64   `json:"etaSeconds"`
	Done       bool      `json:"done,omitempty"`
}

// EntryFromUpdate converts a progress update into a journal entry.
func EntryFromUpdate(u progress.Update) Entry {
	return Entry{
		Stage:      u.Stage,
		Completed:  u.Completed,
		Total:      u.Total,
		ETASeconds: u.ETA.Seconds(),
		Done:       u.Done,
	}
}

// Writer appends journal entries to a JSONL file.
//
// Writer is safe for concurrent use.
type Writer struct {
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
	err     error
}

// NewWriter creates a journal writer at the given path. The parent directory
// must already exist. The file is created if it does not exist, or appended to
// if it does.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	return &Writer{
		file:    f,
		encoder: json.NewEncoder(f),
	}, nil
}

// Log writes an entry to the journal.
func (w *Writer) Log(entry Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	if err := w.encoder.Encode(entry); err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}

	return nil
}

// Notify implements progress.Sink. The first write error is kept and
// reported by Err; later updates are still attempted.
func (w *Writer) Notify(u progress.Update) {
	if err := w.Log(EntryFromUpdate(u)); err != nil {
		w.mu.Lock()
		if w.err == nil {
			w.err = err
		}
		w.mu.Unlock()
	}
}

// Err returns the first error seen by Notify.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.err
}

// Close syncs and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	syncErr := w.file.Sync()
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}
	if syncErr != nil {
		return fmt.Errorf("sync journal: %w", syncErr)
	}

	return nil
}

// Reader reads journal entries from a JSONL file.
type Reader struct {
	path string
}

// NewReader creates a journal reader for the given path.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// Entries reads all entries from the journal in order.
func (r *Reader) Entries() ([]Entry, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return entries, fmt.Errorf("decode journal line %d: %w", lineNum, err)
		}

		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("read journal: %w", err)
	}

	return entries, nil
}
