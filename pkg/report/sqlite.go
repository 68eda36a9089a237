package report

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE report (
	scan_id TEXT,
	hostname TEXT NOT NULL,
	scan_roots TEXT NOT NULL,
	scan_timestamp TEXT NOT NULL,
	duration_seconds REAL NOT NULL,
	hash_algorithm TEXT,
	verified INTEGER NOT NULL,
	total_files_scanned INTEGER NOT NULL,
	duplicate_set_count INTEGER NOT NULL,
	total_duplicate_files INTEGER NOT NULL,
	potential_savings_bytes INTEGER NOT NULL
);
CREATE TABLE sets (
	id INTEGER PRIMARY KEY,
	content_hash TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	file_count INTEGER NOT NULL
);
CREATE TABLE files (
	set_id INTEGER NOT NULL REFERENCES sets(id),
	name TEXT NOT NULL,
	path TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE errors (
	path TEXT NOT NULL,
	reason_kind TEXT NOT NULL,
	detail TEXT NOT NULL
);
CREATE INDEX files_set_id ON files(set_id);
`

// WriteSQLite writes the report into a new SQLite database at path. An
// existing file at path is replaced.
func WriteSQLite(path string, r ScanReport) (err error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to replace report: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close sqlite db: %w", closeErr)
		}
	}()

	for _, stmt := range strings.Split(sqliteSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create sqlite schema: %w", err)
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin sqlite transaction: %w", err)
	}
	if err := insertReport(tx, r); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sqlite transaction: %w", err)
	}

	return nil
}

func insertReport(tx *sql.Tx, r ScanReport) error {
	roots, err := json.Marshal(r.Metadata.ScanRoots)
	if err != nil {
		return fmt.Errorf("encode scan roots: %w", err)
	}

	_, err = tx.Exec(`INSERT INTO report VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Metadata.ScanID,
		r.Metadata.Hostname,
		string(roots),
		r.Metadata.ScanTimestamp.UTC().Format(time.RFC3339Nano),
		r.Metadata.DurationSeconds,
		r.Metadata.HashAlgorithm,
		r.Metadata.Verified,
		r.Summary.TotalFilesScanned,
		r.Summary.DuplicateSetCount,
		r.Summary.TotalDuplicateFiles,
		r.Summary.PotentialSavingsBytes,
	)
	if err != nil {
		return fmt.Errorf("insert report row: %w", err)
	}

	setStmt, err := tx.Prepare(`INSERT INTO sets (id, content_hash, size_bytes, file_count) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare sets insert: %w", err)
	}
	defer setStmt.Close()

	fileStmt, err := tx.Prepare(`INSERT INTO files (set_id, name, path, size_bytes, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare files insert: %w", err)
	}
	defer fileStmt.Close()

	for i, set := range r.Sets {
		id := i + 1
		if _, err := setStmt.Exec(id, set.ContentHash, set.SizeBytes, set.FileCount); err != nil {
			return fmt.Errorf("insert set: %w", err)
		}
		for _, f := range set.Files {
			if _, err := fileStmt.Exec(id, f.Name, f.Path, f.SizeBytes, f.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
				return fmt.Errorf("insert file: %w", err)
			}
		}
	}

	errStmt, err := tx.Prepare(`INSERT INTO errors (path, reason_kind, detail) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare errors insert: %w", err)
	}
	defer errStmt.Close()

	for _, e := range r.Errors {
		if _, err := errStmt.Exec(e.Path, string(e.ReasonKind), e.Detail); err != nil {
			return fmt.Errorf("insert error: %w", err)
		}
	}

	return nil
}
