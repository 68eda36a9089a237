// Package usecase provides application-level orchestration for CLI workflows.
package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"dupaudit/pkg/collector"
	"dupaudit/pkg/config"
	"dupaudit/pkg/filelock"
	"dupaudit/pkg/hasher"
	"dupaudit/pkg/journal"
	"dupaudit/pkg/legacy"
	"dupaudit/pkg/pipeline"
	"dupaudit/pkg/progress"
	"dupaudit/pkg/report"
)

// progressBuffer is how many updates may queue for a slow progress consumer
// before new ones are dropped.
const progressBuffer = 64

// Options configures a Service.
type Options struct {
	Config config.Config
	Logger *zap.Logger
	// Now replaces time.Now.
	Now func() time.Time
}

// ProgressCallback receives workflow stage progress updates.
// Stage names are pipeline state names intended for user-facing progress output.
type ProgressCallback func(stage string, processed, total int)

// Service orchestrates command workflows without Cobra dependencies.
type Service struct {
	cfg    config.Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a use-case service.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	cfg := opts.Config
	cfg.Extensions = append([]string(nil), cfg.Extensions...)
	cfg.SkipDirs = append([]string(nil), cfg.SkipDirs...)

	return &Service{cfg: cfg, logger: logger, now: now}
}

// ScanRequest contains inputs for the scan workflow.
type ScanRequest struct {
	Roots []string
	// OutputPath defaults to a timestamped name in the working directory.
	OutputPath string
	// Format overrides the configured format.
	Format string
	// Sink receives raw progress updates. It is never blocked on.
	Sink progress.Sink
	// OnProgress is a simpler alternative to Sink.
	OnProgress ProgressCallback
}

// ScanExecution contains scan workflow outputs.
type ScanExecution struct {
	Roots           []string
	DroppedRoots    []string
	Report          report.ScanReport
	OutputPath      string
	Format          report.Format
	Duration        time.Duration
	ProgressLogPath string
	// DroppedUpdates counts progress updates discarded because a consumer lagged.
	DroppedUpdates int64
}

// ImportRequest contains inputs for the legacy import workflow.
type ImportRequest struct {
	CSVPath string
	// OutputPath defaults to <name>_migrated.<ext> next to the CSV.
	OutputPath string
	Format     string
}

// ImportExecution contains legacy import workflow outputs.
type ImportExecution struct {
	Result     legacy.Result
	OutputPath string
	Format     report.Format
}

// RunScan validates the roots, runs the duplicate pipeline and persists the
// report. Roots that do not exist or are not directories are dropped; if none
// remain the scan fails with pipeline.ErrNoScanRoots before anything is written.
func (s *Service) RunScan(ctx context.Context, req ScanRequest) (ScanExecution, error) {
	format, err := s.format(req.Format)
	if err != nil {
		return ScanExecution{}, err
	}

	roots, dropped := s.resolveRoots(req.Roots)
	if len(roots) == 0 {
		return ScanExecution{DroppedRoots: dropped}, pipeline.ErrNoScanRoots
	}

	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = s.cfg.Output
	}
	if outputPath == "" {
		outputPath = report.DefaultFilename(format, s.now())
	}
	outputPath, err = filepath.Abs(outputPath)
	if err != nil {
		return ScanExecution{}, fmt.Errorf("cannot resolve output path: %w", err)
	}

	lock, err := acquireOutputLock(outputPath)
	if err != nil {
		return ScanExecution{}, err
	}
	defer lock.Close()

	sinks := []progress.Sink{req.Sink}
	if req.OnProgress != nil {
		sinks = append(sinks, progress.SinkFunc(func(u progress.Update) {
			progress.EmitStage(req.OnProgress, u.Stage, u.Completed, u.Total)
		}))
	}

	var events *journal.Writer
	if s.cfg.ProgressLog != "" {
		events, err = journal.NewWriter(s.cfg.ProgressLog)
		if err != nil {
			return ScanExecution{}, fmt.Errorf("failed to open progress log: %w", err)
		}
		sinks = append(sinks, events)
	}

	var async *progress.AsyncSink
	var sink progress.Sink
	if next := progress.Multi(sinks...); next != nil {
		async = progress.NewAsyncSink(next, progressBuffer)
		sink = async
	}

	p, err := s.newPipeline(sink, filepath.Base(filelock.PathFor(outputPath)))
	if err != nil {
		closeProgress(async, events)
		return ScanExecution{}, err
	}

	startTime := s.now()
	r, err := p.Run(ctx, roots)
	closeProgress(async, events)
	if err != nil {
		return ScanExecution{}, fmt.Errorf("scan failed: %w", err)
	}

	if events != nil {
		if err := events.Err(); err != nil {
			s.logger.Warn("progress log incomplete", zap.String("path", s.cfg.ProgressLog), zap.Error(err))
		}
	}

	if err := save(r, outputPath, format); err != nil {
		return ScanExecution{}, err
	}

	execution := ScanExecution{
		Roots:           roots,
		DroppedRoots:    dropped,
		Report:          r,
		OutputPath:      outputPath,
		Format:          format,
		Duration:        s.now().Sub(startTime),
		ProgressLogPath: s.cfg.ProgressLog,
	}
	if async != nil {
		execution.DroppedUpdates = async.Dropped()
	}

	return execution, nil
}

// RunImport converts a legacy CSV report and persists it.
func (s *Service) RunImport(req ImportRequest) (ImportExecution, error) {
	format, err := s.format(req.Format)
	if err != nil {
		return ImportExecution{}, err
	}

	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = strings.TrimSuffix(legacy.OutputName(req.CSVPath), ".json") + format.Extension()
	}

	lock, err := acquireOutputLock(outputPath)
	if err != nil {
		return ImportExecution{}, err
	}
	defer lock.Close()

	result, err := legacy.New().ImportFile(req.CSVPath)
	if err != nil {
		return ImportExecution{}, err
	}
	if result.RowsSkipped > 0 {
		s.logger.Warn("legacy rows skipped",
			zap.String("csv", req.CSVPath),
			zap.Int("skipped", result.RowsSkipped),
			zap.Int("read", result.RowsRead))
	}

	if err := save(result.Report, outputPath, format); err != nil {
		return ImportExecution{}, err
	}

	return ImportExecution{Result: result, OutputPath: outputPath, Format: format}, nil
}

// SplitRoots accepts roots as separate arguments or as a single
// comma-separated argument. A single argument naming an existing path is
// never split.
func SplitRoots(args []string) []string {
	if len(args) != 1 || !strings.Contains(args[0], ",") {
		return args
	}
	if _, err := os.Stat(args[0]); err == nil {
		return args
	}

	var roots []string
	for _, part := range strings.Split(args[0], ",") {
		if part = strings.TrimSpace(part); part != "" {
			roots = append(roots, part)
		}
	}
	return roots
}

func (s *Service) newPipeline(sink progress.Sink, lockName string) (*pipeline.Pipeline, error) {
	h, err := hasher.New(
		hasher.WithWorkers(s.cfg.Workers),
		hasher.WithTimeout(s.cfg.Timeout),
		hasher.WithAlgorithm(s.cfg.Hash),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create hasher: %w", err)
	}

	c := collector.New(collector.Options{
		Extensions: s.cfg.Extensions,
		SkipDirs:   s.cfg.SkipDirs,
		// An output lock inside a scanned tree is an empty file that would
		// otherwise match every other empty file.
		SkipFiles: []string{lockName},
		Timeout:   s.cfg.Timeout,
	})

	return pipeline.New(pipeline.Options{
		Collector:        c,
		Hasher:           h,
		Verify:           s.cfg.Verify,
		Sink:             sink,
		ProgressInterval: s.cfg.ProgressInterval,
		Logger:           s.logger,
		Now:              s.now,
	})
}

// resolveRoots makes roots absolute and drops the unusable ones. Repeated
// roots, and roots inside another root, are scanned once as part of the
// outermost root.
func (s *Service) resolveRoots(requested []string) (roots, dropped []string) {
	seen := make(map[string]bool, len(requested))

	for _, root := range requested {
		abs, err := filepath.Abs(root)
		if err != nil {
			s.logger.Warn("dropping scan root", zap.String("root", root), zap.Error(err))
			dropped = append(dropped, root)
			continue
		}

		info, err := os.Stat(abs)
		switch {
		case err != nil:
			s.logger.Warn("dropping scan root", zap.String("root", root), zap.Error(err))
			dropped = append(dropped, root)
			continue
		case !info.IsDir():
			s.logger.Warn("dropping scan root", zap.String("root", root), zap.String("reason", "not a directory"))
			dropped = append(dropped, root)
			continue
		}

		if seen[abs] {
			continue
		}
		seen[abs] = true
		roots = append(roots, abs)
	}

	return s.foldNested(roots), dropped
}

// foldNested removes roots that lie under another root, keeping the order
// of the remaining ones.
func (s *Service) foldNested(roots []string) []string {
	kept := roots[:0:0]
	for _, root := range roots {
		parent := ""
		for _, other := range roots {
			if other != root && isWithin(other, root) {
				parent = other
				break
			}
		}
		if parent != "" {
			s.logger.Info("scan root covered by another root",
				zap.String("root", root),
				zap.String("parent", parent))
			continue
		}
		kept = append(kept, root)
	}
	return kept
}

// isWithin reports whether path lies inside dir. Both must be clean and absolute.
func isWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (s *Service) format(override string) (report.Format, error) {
	name := override
	if name == "" {
		name = s.cfg.Format
	}
	return report.ParseFormat(name)
}

// acquireOutputLock takes an advisory lock next to the report path so two
// runs cannot write the same report.
func acquireOutputLock(outputPath string) (*filelock.Lock, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	lock, err := filelock.Acquire(filelock.PathFor(outputPath))
	if err != nil {
		return nil, fmt.Errorf("another dupaudit process is writing %s: %w", outputPath, err)
	}

	return lock, nil
}

func save(r report.ScanReport, outputPath string, format report.Format) error {
	if err := r.Save(outputPath, format); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

func closeProgress(async *progress.AsyncSink, events *journal.Writer) {
	if async != nil {
		async.Close()
	}
	if events != nil {
		_ = events.Close()
	}
}
