package usecase

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v3"

	"dupaudit/internal/testutil"
	"dupaudit/pkg/config"
	"dupaudit/pkg/filelock"
	"dupaudit/pkg/journal"
	"dupaudit/pkg/legacy"
	"dupaudit/pkg/pipeline"
	"dupaudit/pkg/report"
)

var fixedNow = time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC)

func newService(t *testing.T, mutate func(*config.Config)) (*Service, *observer.ObservedLogs) {
	t.Helper()

	cfg := config.Defaults()
	cfg.Workers = 2
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, cfg.Validate())

	core, logs := observer.New(zapcore.DebugLevel)
	return New(Options{
		Config: cfg,
		Logger: zap.New(core),
		Now:    func() time.Time { return fixedNow },
	}), logs
}

func duplicateTree(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	testutil.CreateFile(t, filepath.Join(dir, "a.txt"), "hello")
	testutil.CreateFile(t, filepath.Join(dir, "nested", "b.txt"), "hello")
	testutil.CreateFile(t, filepath.Join(dir, "c.txt"), "world")
	return dir
}

func TestService_RunScan_WritesReport(t *testing.T) {
	t.Parallel()

	root := duplicateTree(t)
	out := filepath.Join(t.TempDir(), "report.json")

	s, _ := newService(t, nil)
	execution, err := s.RunScan(context.Background(), ScanRequest{Roots: []string{root}, OutputPath: out})
	require.NoError(t, err)

	assert.Equal(t, out, execution.OutputPath)
	assert.Equal(t, report.FormatJSON, execution.Format)
	assert.Equal(t, []string{root}, execution.Roots)
	assert.Empty(t, execution.DroppedRoots)
	require.Len(t, execution.Report.Sets, 1)

	loaded, err := report.Load(out)
	require.NoError(t, err)
	assert.Equal(t, execution.Report.Summary, loaded.Summary)
	assert.Equal(t, []string{root}, loaded.Metadata.ScanRoots)
	assert.Equal(t, "sha256", loaded.Metadata.HashAlgorithm)

	_, err = os.Stat(filelock.PathFor(out))
	assert.True(t, os.IsNotExist(err), "lock is removed after the run")
}

func TestService_RunScan_DropsUnusableRoots(t *testing.T) {
	t.Parallel()

	root := duplicateTree(t)
	missing := filepath.Join(t.TempDir(), "missing")
	file := filepath.Join(t.TempDir(), "plain.txt")
	testutil.CreateFile(t, file, "x")

	s, logs := newService(t, nil)
	execution, err := s.RunScan(context.Background(), ScanRequest{
		Roots:      []string{missing, root, file, root},
		OutputPath: filepath.Join(t.TempDir(), "report.json"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{root}, execution.Roots, "repeated roots are scanned once")
	assert.Equal(t, []string{missing, file}, execution.DroppedRoots)
	assert.Equal(t, 2, logs.FilterMessage("dropping scan root").Len())
	assert.Equal(t, 3, execution.Report.Summary.TotalFilesScanned)
}

func TestService_RunScan_NestedRoots(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.CreateFile(t, filepath.Join(dir, "sub", "only.txt"), "one of a kind")
	sub := filepath.Join(dir, "sub")

	tests := []struct {
		name  string
		roots []string
	}{
		{name: "outer first", roots: []string{dir, sub}},
		{name: "inner first", roots: []string{sub, dir}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, logs := newService(t, nil)
			execution, err := s.RunScan(context.Background(), ScanRequest{
				Roots:      tt.roots,
				OutputPath: filepath.Join(t.TempDir(), "report.json"),
			})
			require.NoError(t, err)

			assert.Equal(t, []string{dir}, execution.Roots)
			assert.Empty(t, execution.DroppedRoots)
			assert.Empty(t, execution.Report.Sets)
			assert.Equal(t, report.Summary{TotalFilesScanned: 1}, execution.Report.Summary)
			assert.Equal(t, 1, logs.FilterMessage("scan root covered by another root").Len())
		})
	}
}

func TestIsWithin(t *testing.T) {
	t.Parallel()

	base := filepath.Join(string(filepath.Separator), "data")

	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "child", path: filepath.Join(base, "sub"), want: true},
		{name: "grandchild", path: filepath.Join(base, "a", "b"), want: true},
		{name: "same", path: base, want: false},
		{name: "sibling with shared prefix", path: base + "2", want: false},
		{name: "parent", path: string(filepath.Separator), want: false},
		{name: "dotdot name", path: filepath.Join(base, "..data"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isWithin(base, tt.path))
		})
	}
}

func TestService_RunScan_NoUsableRoots(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		roots []string
	}{
		{name: "none", roots: nil},
		{name: "all missing", roots: []string{filepath.Join(t.TempDir(), "gone"), filepath.Join(t.TempDir(), "also-gone")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out := filepath.Join(t.TempDir(), "report.json")
			s, _ := newService(t, nil)

			_, err := s.RunScan(context.Background(), ScanRequest{Roots: tt.roots, OutputPath: out})
			require.ErrorIs(t, err, pipeline.ErrNoScanRoots)

			_, statErr := os.Stat(out)
			assert.True(t, os.IsNotExist(statErr), "no report is produced")
		})
	}
}

func TestService_RunScan_HoldsLockWhileScanning(t *testing.T) {
	t.Parallel()

	root := duplicateTree(t)
	out := filepath.Join(t.TempDir(), "report.json")
	lockPath := filelock.PathFor(out)

	var mu sync.Mutex
	calls, held := 0, 0
	onProgress := func(string, int, int) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if _, err := os.Stat(lockPath); err == nil {
			held++
		}
	}

	s, _ := newService(t, nil)
	_, err := s.RunScan(context.Background(), ScanRequest{Roots: []string{root}, OutputPath: out, OnProgress: onProgress})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Positive(t, calls)
	assert.Equal(t, calls, held, "lock file exists for every progress update")
	assert.NoFileExists(t, lockPath)
}

func TestService_RunScan_LockHeld(t *testing.T) {
	t.Parallel()

	root := duplicateTree(t)
	out := filepath.Join(t.TempDir(), "report.json")

	held, err := filelock.Acquire(filelock.PathFor(out))
	require.NoError(t, err)
	t.Cleanup(func() { _ = held.Close() })

	s, _ := newService(t, nil)
	_, err = s.RunScan(context.Background(), ScanRequest{Roots: []string{root}, OutputPath: out})
	require.ErrorIs(t, err, filelock.ErrLocked)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestService_RunScan_OutputInsideRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	testutil.CreateFile(t, filepath.Join(root, "empty-1"), "")
	testutil.CreateFile(t, filepath.Join(root, "empty-2"), "")

	s, _ := newService(t, nil)
	execution, err := s.RunScan(context.Background(), ScanRequest{
		Roots:      []string{root},
		OutputPath: filepath.Join(root, "report.json"),
	})
	require.NoError(t, err)

	require.Len(t, execution.Report.Sets, 1)
	assert.Equal(t, 2, execution.Report.Sets[0].FileCount, "the lock file is not scanned")
}

func TestService_RunScan_FormatOverride(t *testing.T) {
	t.Parallel()

	root := duplicateTree(t)
	out := filepath.Join(t.TempDir(), "report.yaml")

	s, _ := newService(t, func(c *config.Config) { c.Format = "csv" })
	execution, err := s.RunScan(context.Background(), ScanRequest{Roots: []string{root}, OutputPath: out, Format: "yml"})
	require.NoError(t, err)
	assert.Equal(t, report.FormatYAML, execution.Format)

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var decoded report.ScanReport
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, execution.Report.Summary, decoded.Summary)
}

func TestService_RunScan_UnknownFormat(t *testing.T) {
	t.Parallel()

	s, _ := newService(t, nil)
	_, err := s.RunScan(context.Background(), ScanRequest{Roots: []string{t.TempDir()}, Format: "xml"})
	assert.ErrorIs(t, err, report.ErrUnknownFormat)
}

func TestService_RunScan_DefaultOutputName(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	root := duplicateTree(t)
	s, _ := newService(t, func(c *config.Config) { c.Format = "sqlite" })

	execution, err := s.RunScan(context.Background(), ScanRequest{Roots: []string{root}})
	require.NoError(t, err)

	want := filepath.Join(dir, report.DefaultFilename(report.FormatSQLite, fixedNow))
	assert.Equal(t, want, execution.OutputPath)
	_, err = os.Stat(want)
	assert.NoError(t, err)
}

func TestService_RunScan_ConfiguredOutput(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "configured.json")
	s, _ := newService(t, func(c *config.Config) { c.Output = out })

	execution, err := s.RunScan(context.Background(), ScanRequest{Roots: []string{duplicateTree(t)}})
	require.NoError(t, err)
	assert.Equal(t, out, execution.OutputPath)
}

func TestService_RunScan_Progress(t *testing.T) {
	t.Parallel()

	root := duplicateTree(t)
	events := filepath.Join(t.TempDir(), "events.jsonl")

	s, _ := newService(t, func(c *config.Config) { c.ProgressLog = events })

	var mu sync.Mutex
	stages := make(map[string]bool)
	execution, err := s.RunScan(context.Background(), ScanRequest{
		Roots:      []string{root},
		OutputPath: filepath.Join(t.TempDir(), "report.json"),
		OnProgress: func(stage string, _, _ int) {
			mu.Lock()
			defer mu.Unlock()
			stages[stage] = true
		},
	})
	require.NoError(t, err)
	assert.Equal(t, events, execution.ProgressLogPath)

	entries, err := journal.NewReader(events).Entries()
	require.NoError(t, err)

	var done []string
	for _, e := range entries {
		if e.Done {
			done = append(done, e.Stage)
		}
	}
	if execution.DroppedUpdates == 0 {
		assert.Equal(t, []string{"walking", "partial-hashing", "full-hashing"}, done)

		mu.Lock()
		defer mu.Unlock()
		assert.True(t, stages["walking"])
		assert.True(t, stages["full-hashing"])
	}
}

func TestService_RunScan_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := filepath.Join(t.TempDir(), "report.json")
	s, _ := newService(t, nil)
	_, err := s.RunScan(ctx, ScanRequest{Roots: []string{duplicateTree(t)}, OutputPath: out})
	require.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

const legacyCSV = `Name,Created,Size,Folder,Path
a.jpg,2020-01-01 00:00:00,100,/old,/old/a.jpg
b.jpg,2020-01-01 00:00:00,100,/old,/old/b.jpg
c.jpg,2020-01-01 00:00:00,7,/old,/old/c.jpg
`

func TestService_RunImport(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "old.csv")
	testutil.CreateFile(t, csvPath, legacyCSV)

	s, _ := newService(t, nil)
	execution, err := s.RunImport(ImportRequest{CSVPath: csvPath})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "old_migrated.json"), execution.OutputPath)

	loaded, err := report.Load(execution.OutputPath)
	require.NoError(t, err)
	require.Len(t, loaded.Sets, 1)
	assert.Equal(t, legacy.SentinelHash, loaded.Sets[0].ContentHash)
	assert.Equal(t, int64(100), loaded.Summary.PotentialSavingsBytes)
	assert.Equal(t, 2, loaded.Summary.TotalFilesScanned)
}

func TestService_RunImport_FormatAndOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "old.csv")
	testutil.CreateFile(t, csvPath, legacyCSV)

	s, _ := newService(t, nil)

	execution, err := s.RunImport(ImportRequest{CSVPath: csvPath, Format: "yaml"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "old_migrated.yaml"), execution.OutputPath)

	out := filepath.Join(dir, "custom", "imported.db")
	execution, err = s.RunImport(ImportRequest{CSVPath: csvPath, OutputPath: out, Format: "sqlite"})
	require.NoError(t, err)
	assert.Equal(t, out, execution.OutputPath)
	_, err = os.Stat(out)
	assert.NoError(t, err)
}

func TestService_RunImport_MissingCSV(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, _ := newService(t, nil)
	_, err := s.RunImport(ImportRequest{CSVPath: filepath.Join(dir, "missing.csv")})
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "missing_migrated.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSplitRoots(t *testing.T) {
	t.Parallel()

	withComma := filepath.Join(t.TempDir(), "a,b")
	require.NoError(t, os.MkdirAll(withComma, 0o755))

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{name: "separate args", args: []string{"/a", "/b"}, want: []string{"/a", "/b"}},
		{name: "comma separated", args: []string{"/a, /b,,"}, want: []string{"/a", "/b"}},
		{name: "single", args: []string{"/a"}, want: []string{"/a"}},
		{name: "existing path with comma", args: []string{withComma}, want: []string{withComma}},
		{name: "empty", args: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SplitRoots(tt.args))
		})
	}
}
