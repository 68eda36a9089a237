package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dupaudit/pkg/collector"
	"dupaudit/pkg/skiplog"
)

var (
	testStart   = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	testCreated = time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
)

func record(path string, size int64) collector.FileRecord {
	return collector.FileRecord{
		Name:      path[len(path)-5:],
		Path:      path,
		Size:      size,
		CreatedAt: testCreated,
	}
}

func sampleInput() Input {
	return Input{
		ScanID:     "scan-1",
		Hostname:   "host",
		Roots:      []string{"/data", "/backup"},
		StartedAt:  testStart,
		FinishedAt: testStart.Add(1500 * time.Millisecond),
		TotalFiles: 10,
		Groups: []Group{
			{Hash: "small", Size: 5, Files: []collector.FileRecord{record("/data/b.txt", 5), record("/data/a.txt", 5)}},
			{Hash: "large", Size: 100, Files: []collector.FileRecord{record("/data/x.bin", 100), record("/data/y.bin", 100), record("/data/z.bin", 100)}},
			{Hash: "lonely", Size: 7, Files: []collector.FileRecord{record("/data/l.txt", 7)}},
		},
		Skipped: []skiplog.Record{
			{Path: "/data/locked", Kind: skiplog.AccessDenied, Detail: "permission denied"},
			{Path: "/data/link", Kind: skiplog.SymbolicLinkSkipped},
		},
		HashAlgorithm: "sha256",
		Verified:      true,
	}
}

func TestBuild(t *testing.T) {
	r := Build(sampleInput())

	assert.Equal(t, Metadata{
		ScanID:          "scan-1",
		Hostname:        "host",
		ScanRoots:       []string{"/data", "/backup"},
		ScanTimestamp:   testStart,
		DurationSeconds: 1.5,
		HashAlgorithm:   "sha256",
		Verified:        true,
	}, r.Metadata)

	assert.Equal(t, Summary{
		TotalFilesScanned:     10,
		DuplicateSetCount:     2,
		TotalDuplicateFiles:   5,
		PotentialSavingsBytes: 5 + 200,
	}, r.Summary)

	require.Len(t, r.Sets, 2)
	assert.Equal(t, "large", r.Sets[0].ContentHash, "largest savings first")
	assert.Equal(t, 3, r.Sets[0].FileCount)
	assert.Equal(t, "small", r.Sets[1].ContentHash)
	assert.Equal(t, "/data/a.txt", r.Sets[1].Files[0].Path, "files sorted by path")
	assert.Equal(t, "/data/b.txt", r.Sets[1].Files[1].Path)
	assert.Equal(t, int64(5), r.Sets[1].Files[0].SizeBytes)
	assert.Equal(t, testCreated, r.Sets[1].Files[0].CreatedAt)

	require.Len(t, r.Errors, 2)
	assert.Equal(t, SkipEntry{Path: "/data/locked", ReasonKind: skiplog.AccessDenied, Detail: "permission denied"}, r.Errors[0])
	assert.Equal(t, skiplog.SymbolicLinkSkipped, r.Errors[1].ReasonKind)
}

func TestBuild_DoesNotMutateInput(t *testing.T) {
	in := sampleInput()
	Build(in)

	assert.Equal(t, "/data/b.txt", in.Groups[0].Files[0].Path)
	assert.Equal(t, []string{"/data", "/backup"}, in.Roots)
}

func TestBuild_Empty(t *testing.T) {
	r := Build(Input{Hostname: "host", StartedAt: testStart, FinishedAt: testStart})

	assert.NotNil(t, r.Sets)
	assert.NotNil(t, r.Errors)
	assert.NotNil(t, r.Metadata.ScanRoots)
	assert.Equal(t, Summary{}, r.Summary)
	assert.Zero(t, r.Metadata.DurationSeconds)
}

func TestBuild_SavingsInvariant(t *testing.T) {
	r := Build(sampleInput())

	var savings int64
	var files int
	for _, s := range r.Sets {
		assert.Equal(t, len(s.Files), s.FileCount)
		assert.GreaterOrEqual(t, s.FileCount, 2)
		savings += s.SizeBytes * int64(s.FileCount-1)
		files += s.FileCount
	}
	assert.Equal(t, savings, r.Summary.PotentialSavingsBytes)
	assert.Equal(t, files, r.Summary.TotalDuplicateFiles)
}

func TestBuild_EqualSavingsOrderedByHash(t *testing.T) {
	in := Input{Groups: []Group{
		{Hash: "bbb", Size: 10, Files: []collector.FileRecord{record("/x/1.bin", 10), record("/x/2.bin", 10)}},
		{Hash: "aaa", Size: 10, Files: []collector.FileRecord{record("/x/3.bin", 10), record("/x/4.bin", 10)}},
	}}

	r := Build(in)
	require.Len(t, r.Sets, 2)
	assert.Equal(t, "aaa", r.Sets[0].ContentHash)
}

func TestDuplicateSet_Savings(t *testing.T) {
	assert.Equal(t, int64(0), DuplicateSet{SizeBytes: 10, FileCount: 1}.Savings())
	assert.Equal(t, int64(20), DuplicateSet{SizeBytes: 10, FileCount: 3}.Savings())
}
