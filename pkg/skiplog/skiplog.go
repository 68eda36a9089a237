// Package skiplog records paths that were excluded from a scan and why.
// A Log is append-only: records are never removed or rewritten once added.
package skiplog

import (
	"sync"
)

// Kind classifies why a path was excluded.
type Kind string

const (
	// AccessDenied means a directory could not be listed or an entry could not be stat'ed.
	AccessDenied Kind = "AccessDenied"
	// SymbolicLinkSkipped means a symbolic link was found and deliberately not followed.
	SymbolicLinkSkipped Kind = "SymbolicLinkSkipped"
	// HashFailure means a file could not be read during a hashing stage.
	HashFailure Kind = "HashFailure"
)

// Record is one skipped path.
type Record struct {
	Path   string
	Kind   Kind
	Detail string
}

// New builds a Record, taking the detail from err when it is non-nil.
func New(path string, kind Kind, err error) Record {
	r := Record{Path: path, Kind: kind}
	if err != nil {
		r.Detail = err.Error()
	}
	return r
}

// Log accumulates records. It is safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	records []Record
}

// Add appends records to the log.
func (l *Log) Add(records ...Record) {
	if len(records) == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, records...)
}

// Records returns a copy of the accumulated records in insertion order.
func (l *Log) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]Record(nil), l.records...)
}

// Len returns the number of records.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.records)
}

// CountByKind returns how many records of each kind have been logged.
func (l *Log) CountByKind() map[Kind]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	counts := make(map[Kind]int)
	for _, r := range l.records {
		counts[r.Kind]++
	}
	return counts
}
