// Package report assembles the final scan report and persists it.
//
// Build is pure: it turns duplicate groups, the skip log and run metadata
// into a ScanReport without touching the filesystem. Writers in this package
// serialize a finished report as JSON, YAML, CSV or SQLite.
package report

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"dupaudit/pkg/collector"
	"dupaudit/pkg/skiplog"
)

// ScanReport is the complete result of one scan. It is not modified after Build.
type ScanReport struct {
	Metadata Metadata       `json:"metadata" yaml:"metadata"`
	Summary  Summary        `json:"summary" yaml:"summary"`
	Sets     []DuplicateSet `json:"sets" yaml:"sets"`
	Errors   []SkipEntry    `json:"errors" yaml:"errors"`
}

// Metadata describes the run that produced a report.
type Metadata struct {
	ScanID          string    `json:"scanId,omitempty" yaml:"scanId,omitempty"`
	Hostname        string    `json:"hostname" yaml:"hostname"`
	ScanRoots       []string  `json:"scanRoots" yaml:"scanRoots"`
	ScanTimestamp   time.Time `json:"scanTimestamp" yaml:"scanTimestamp"`
	DurationSeconds float64   `json:"durationSeconds" yaml:"durationSeconds"`
	HashAlgorithm   string    `json:"hashAlgorithm,omitempty" yaml:"hashAlgorithm,omitempty"`
	Verified        bool      `json:"verified" yaml:"verified"`
}

// Summary holds the report totals.
type Summary struct {
	TotalFilesScanned     int   `json:"totalFilesScanned" yaml:"totalFilesScanned"`
	DuplicateSetCount     int   `json:"duplicateSetCount" yaml:"duplicateSetCount"`
	TotalDuplicateFiles   int   `json:"totalDuplicateFiles" yaml:"totalDuplicateFiles"`
	PotentialSavingsBytes int64 `json:"potentialSavingsBytes" yaml:"potentialSavingsBytes"`
}

// DuplicateSet is a group of two or more files with identical content.
type DuplicateSet struct {
	ContentHash string `json:"contentHash" yaml:"contentHash"`
	SizeBytes   int64  `json:"sizeBytes" yaml:"sizeBytes"`
	FileCount   int    `json:"fileCount" yaml:"fileCount"`
	Files       []File `json:"files" yaml:"files"`
}

// Savings returns the bytes reclaimable by keeping a single copy.
func (s DuplicateSet) Savings() int64 {
	if s.FileCount < 2 {
		return 0
	}
	return s.SizeBytes * int64(s.FileCount-1)
}

// File is one member of a duplicate set.
type File struct {
	Name      string    `json:"name" yaml:"name"`
	Path      string    `json:"path" yaml:"path"`
	SizeBytes int64     `json:"sizeBytes" yaml:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

// SkipEntry is one entry of the skip log.
type SkipEntry struct {
	Path       string       `json:"path" yaml:"path"`
	ReasonKind skiplog.Kind `json:"reasonKind" yaml:"reasonKind"`
	Detail     string       `json:"detail" yaml:"detail"`
}

// Group is a confirmed duplicate group handed to Build.
type Group struct {
	Hash  string
	Size  int64
	Files []collector.FileRecord
}

// Input carries everything Build needs.
type Input struct {
	ScanID        string
	Hostname      string
	Roots         []string
	StartedAt     time.Time
	FinishedAt    time.Time
	TotalFiles    int
	Groups        []Group
	Skipped       []skiplog.Record
	HashAlgorithm string
	Verified      bool
}

// Build assembles a ScanReport. Groups with fewer than two files are ignored.
// Sets are ordered by potential savings (largest first), then hash and size;
// files within a set are ordered by path. Inputs are not modified.
func Build(in Input) ScanReport {
	r := ScanReport{
		Metadata: Metadata{
			ScanID:          in.ScanID,
			Hostname:        in.Hostname,
			ScanRoots:       append([]string{}, in.Roots...),
			ScanTimestamp:   in.StartedAt.UTC(),
			DurationSeconds: durationSeconds(in.StartedAt, in.FinishedAt),
			HashAlgorithm:   in.HashAlgorithm,
			Verified:        in.Verified,
		},
		Sets:   make([]DuplicateSet, 0, len(in.Groups)),
		Errors: make([]SkipEntry, 0, len(in.Skipped)),
	}

	for _, g := range in.Groups {
		if len(g.Files) < 2 {
			continue
		}
		r.Sets = append(r.Sets, newSet(g))
	}

	slices.SortFunc(r.Sets, compareSets)

	for _, s := range in.Skipped {
		r.Errors = append(r.Errors, SkipEntry{Path: s.Path, ReasonKind: s.Kind, Detail: s.Detail})
	}

	r.Summary = Summarize(r.Sets)
	r.Summary.TotalFilesScanned = in.TotalFiles

	return r
}

// Summarize computes set count, duplicate file count and savings over sets.
// TotalFilesScanned is left zero.
func Summarize(sets []DuplicateSet) Summary {
	s := Summary{DuplicateSetCount: len(sets)}
	for _, set := range sets {
		s.TotalDuplicateFiles += set.FileCount
		s.PotentialSavingsBytes += set.Savings()
	}
	return s
}

func newSet(g Group) DuplicateSet {
	files := make([]File, 0, len(g.Files))
	for _, f := range g.Files {
		files = append(files, File{
			Name:      f.Name,
			Path:      f.Path,
			SizeBytes: f.Size,
			CreatedAt: f.CreatedAt.UTC(),
		})
	}
	slices.SortFunc(files, func(a, b File) int {
		return strings.Compare(a.Path, b.Path)
	})

	return DuplicateSet{
		ContentHash: g.Hash,
		SizeBytes:   g.Size,
		FileCount:   len(files),
		Files:       files,
	}
}

func compareSets(a, b DuplicateSet) int {
	if c := cmp.Compare(b.Savings(), a.Savings()); c != 0 {
		return c
	}
	if c := strings.Compare(a.ContentHash, b.ContentHash); c != 0 {
		return c
	}
	if c := cmp.Compare(a.SizeBytes, b.SizeBytes); c != 0 {
		return c
	}
	// Sets sharing a hash and size (only possible for imported reports) fall
	// back to their first path.
	return strings.Compare(a.Files[0].Path, b.Files[0].Path)
}

func durationSeconds(start, end time.Time) float64 {
	if start.IsZero() || end.Before(start) {
		return 0
	}
	return end.Sub(start).Seconds()
}
