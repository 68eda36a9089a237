// Package legacy imports duplicate reports produced by the old CSV exporter.
//
// The old format grouped files by size only and never stored a content hash,
// so imported sets carry SentinelHash instead of a real digest.
package legacy

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dupaudit/pkg/collector"
	"dupaudit/pkg/duplicates"
	"dupaudit/pkg/report"
)

const (
	// SentinelHash marks sets whose content was never verified.
	SentinelHash = "migrated-legacy"
	// Hostname is recorded in the metadata of imported reports.
	Hostname = "Migrated-Legacy"
	// ImportedRoot is recorded as the only scan root of imported reports.
	ImportedRoot = "Imported from CSV"
)

const minColumns = 5

// Result is an imported report plus row accounting.
type Result struct {
	Report      report.ScanReport
	RowsRead    int
	RowsSkipped int
}

// Importer converts legacy CSV reports.
type Importer struct {
	now func() time.Time
}

// New creates an Importer.
func New() *Importer {
	return &Importer{now: time.Now}
}

// ImportFile reads a legacy CSV file.
func (im *Importer) ImportFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open legacy report: %w", err)
	}
	defer f.Close()

	return im.Import(f)
}

// Import reads a legacy CSV report with a header row followed by
// name, created, size, folder, path columns. Rows with fewer columns or an
// unparsable size are skipped and counted.
func (im *Importer) Import(r io.Reader) (Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return im.build(nil, 0, 0), nil
		}
		return Result{}, fmt.Errorf("failed to read legacy header: %w", err)
	}

	var files []collector.FileRecord
	var read, skipped int

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("failed to read legacy report: %w", err)
		}
		if blank(row) {
			continue
		}
		read++

		f, ok := parseRow(row)
		if !ok {
			skipped++
			continue
		}
		files = append(files, f)
	}

	return im.build(files, read, skipped), nil
}

func (im *Importer) build(files []collector.FileRecord, read, skipped int) Result {
	groups := duplicates.GroupBySize(files)

	in := report.Input{
		Hostname:      Hostname,
		Roots:         []string{ImportedRoot},
		StartedAt:     im.now(),
		HashAlgorithm: SentinelHash,
		Groups:        make([]report.Group, 0, len(groups)),
	}
	in.FinishedAt = in.StartedAt

	for _, g := range groups {
		in.Groups = append(in.Groups, report.Group{Hash: SentinelHash, Size: g[0].Size, Files: g})
	}

	r := report.Build(in)
	// Only grouped rows survive the old export, so every imported file is a
	// duplicate candidate.
	r.Summary.TotalFilesScanned = r.Summary.TotalDuplicateFiles

	return Result{Report: r, RowsRead: read, RowsSkipped: skipped}
}

func parseRow(row []string) (collector.FileRecord, bool) {
	if len(row) < minColumns {
		return collector.FileRecord{}, false
	}

	size, err := strconv.ParseInt(strings.TrimSpace(row[2]), 10, 64)
	if err != nil || size < 0 {
		return collector.FileRecord{}, false
	}

	name := strings.TrimSpace(row[0])
	path := strings.TrimSpace(row[4])
	if path == "" {
		path = filepath.Join(strings.TrimSpace(row[3]), name)
	}

	return collector.FileRecord{
		Name:      name,
		Path:      path,
		Size:      size,
		CreatedAt: parseCreated(strings.TrimSpace(row[1])),
	}, true
}

var createdLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"1/2/2006 15:04:05",
	"1/2/2006, 3:04:05 PM",
	"2006-01-02",
}

// parseCreated accepts the timestamp styles seen in old exports; anything
// else yields the zero time.
func parseCreated(s string) time.Time {
	for _, layout := range createdLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func blank(row []string) bool {
	for _, field := range row {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// OutputName derives the default output path for an imported CSV:
// reports/old.csv becomes reports/old_migrated.json.
func OutputName(csvPath string) string {
	ext := filepath.Ext(csvPath)
	if strings.EqualFold(ext, ".csv") {
		return strings.TrimSuffix(csvPath, ext) + "_migrated.json"
	}
	return csvPath + "_migrated.json"
}
