// Package pipeline runs one duplicate scan from roots to report.
//
// A scan moves through fixed stages:
// 1. Walking: collect regular files under every root
// 2. Grouping: drop files whose size is unique
// 3. PartialHashing: fingerprint the first 16 KiB and regroup by (size, fingerprint)
// 4. FullHashing: hash whole files, regroup by (size, hash), optionally verify bytes
// 5. ReportReady: assemble the report
//
// Every stage runs even when its input is empty, and each stage drains its
// work completely before the next one starts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dupaudit/pkg/collector"
	"dupaudit/pkg/duplicates"
	"dupaudit/pkg/hasher"
	"dupaudit/pkg/progress"
	"dupaudit/pkg/report"
	"dupaudit/pkg/skiplog"
)

var (
	// ErrNoScanRoots is returned when Run is called without any root.
	ErrNoScanRoots = errors.New("no scan roots")
	// ErrAlreadyRun is returned by a second call to Run.
	ErrAlreadyRun = errors.New("pipeline already run")
)

// State is a pipeline stage.
type State int

const (
	Idle State = iota
	Walking
	Grouping
	PartialHashing
	FullHashing
	ReportReady
)

var stateNames = [...]string{
	Idle:           "idle",
	Walking:        "walking",
	Grouping:       "grouping",
	PartialHashing: "partial-hashing",
	FullHashing:    "full-hashing",
	ReportReady:    "report-ready",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// DefaultProgressInterval throttles tracker updates when Options leaves it zero.
const DefaultProgressInterval = 250 * time.Millisecond

// Options configures a Pipeline. Collector and Hasher are required.
type Options struct {
	Collector *collector.Collector
	Hasher    *hasher.Hasher
	// Verify compares bytes of every confirmed set before reporting it.
	Verify bool
	// Sink receives progress updates. It must not block.
	Sink             progress.Sink
	ProgressInterval time.Duration
	Logger           *zap.Logger
	// Hostname overrides os.Hostname.
	Hostname string
	// Now replaces time.Now.
	Now func() time.Time
	// NewID replaces uuid.NewString for the scan ID.
	NewID func() string
	// OnTransition is called on every state change.
	OnTransition func(from, to State)
}

// Pipeline is a single-use scan.
type Pipeline struct {
	opts   Options
	logger *zap.Logger

	mu    sync.Mutex
	state State
	ran   bool
}

// New creates a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Collector == nil {
		return nil, errors.New("collector is required")
	}
	if opts.Hasher == nil {
		return nil, errors.New("hasher is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{opts: opts, logger: logger}, nil
}

// State returns the current stage.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run scans roots and returns the report. Roots are used as given; callers
// resolve and validate them beforehand. Path-scoped failures end up in the
// report's errors; only an empty root list, a second call and context
// cancellation return an error.
func (p *Pipeline) Run(ctx context.Context, roots []string) (report.ScanReport, error) {
	p.mu.Lock()
	if p.ran {
		p.mu.Unlock()
		return report.ScanReport{}, ErrAlreadyRun
	}
	if len(roots) == 0 {
		p.mu.Unlock()
		return report.ScanReport{}, ErrNoScanRoots
	}
	p.ran = true
	p.mu.Unlock()

	started := p.opts.Now()
	var skipped skiplog.Log

	p.transition(Walking)
	files, err := p.walk(ctx, roots, &skipped)
	if err != nil {
		return report.ScanReport{}, err
	}

	p.transition(Grouping)
	candidates := duplicates.Flatten(duplicates.GroupBySize(files))
	p.logger.Debug("size grouping done",
		zap.Int("files", len(files)),
		zap.Int("candidates", len(candidates)))

	p.transition(PartialHashing)
	candidates, err = p.partialHash(ctx, candidates, &skipped)
	if err != nil {
		return report.ScanReport{}, err
	}

	p.transition(FullHashing)
	groups, err := p.fullHash(ctx, candidates, &skipped)
	if err != nil {
		return report.ScanReport{}, err
	}

	r := report.Build(report.Input{
		ScanID:        p.opts.NewID(),
		Hostname:      p.hostname(),
		Roots:         roots,
		StartedAt:     started,
		FinishedAt:    p.opts.Now(),
		TotalFiles:    len(files),
		Groups:        groups,
		Skipped:       skipped.Records(),
		HashAlgorithm: p.opts.Hasher.Algorithm(),
		Verified:      p.opts.Verify,
	})
	p.transition(ReportReady)

	skips := skipped.CountByKind()
	p.logger.Info("scan complete",
		zap.String("scan_id", r.Metadata.ScanID),
		zap.Int("files", r.Summary.TotalFilesScanned),
		zap.Int("sets", r.Summary.DuplicateSetCount),
		zap.Int64("savings_bytes", r.Summary.PotentialSavingsBytes),
		zap.Int("errors", skipped.Len()),
		zap.Int("access_denied", skips[skiplog.AccessDenied]),
		zap.Int("symlinks_skipped", skips[skiplog.SymbolicLinkSkipped]),
		zap.Int("hash_failures", skips[skiplog.HashFailure]))

	return r, nil
}

func (p *Pipeline) walk(ctx context.Context, roots []string, skipped *skiplog.Log) ([]collector.FileRecord, error) {
	tracker := p.tracker(Walking, 0)

	res, err := p.opts.Collector.WithProgress(tracker.Set).Collect(ctx, roots...)
	if err != nil {
		return nil, fmt.Errorf("walk failed: %w", err)
	}
	tracker.Finish()

	p.record(skipped, res.Skipped)
	return res.Files, nil
}

// partialHash keeps the files that share both size and prefix fingerprint
// with at least one other file.
func (p *Pipeline) partialHash(ctx context.Context, files []collector.FileRecord, skipped *skiplog.Log) ([]collector.FileRecord, error) {
	hashes, err := p.hashAll(ctx, PartialHashing, files, p.opts.Hasher.HashPartialFiles, skipped)
	if err != nil {
		return nil, err
	}

	groups := duplicates.GroupByHash(files, hashes)
	survivors := duplicates.Flatten(groups)
	p.logger.Debug("partial hashing done",
		zap.Int("hashed", len(hashes)),
		zap.Int("candidates", len(survivors)))

	return survivors, nil
}

func (p *Pipeline) fullHash(ctx context.Context, files []collector.FileRecord, skipped *skiplog.Log) ([]report.Group, error) {
	hashes, err := p.hashAll(ctx, FullHashing, files, p.opts.Hasher.HashFiles, skipped)
	if err != nil {
		return nil, err
	}

	var groups []report.Group
	for _, g := range duplicates.GroupByHash(files, hashes) {
		hash := hashes[g[0].Path]
		for i := range g {
			g[i].FullHash = hash
		}

		if !p.opts.Verify {
			groups = append(groups, report.Group{Hash: hash, Size: g[0].Size, Files: g})
			continue
		}

		verified, err := p.verify(ctx, g, skipped)
		if err != nil {
			return nil, err
		}
		for _, v := range verified {
			groups = append(groups, report.Group{Hash: hash, Size: v[0].Size, Files: v})
		}
	}

	p.logger.Debug("full hashing done",
		zap.Int("hashed", len(hashes)),
		zap.Int("sets", len(groups)))

	return groups, nil
}

// verify splits a hash group into byte-identical classes and keeps the
// classes with two or more files.
func (p *Pipeline) verify(ctx context.Context, group []collector.FileRecord, skipped *skiplog.Log) ([][]collector.FileRecord, error) {
	byPath := make(map[string]collector.FileRecord, len(group))
	paths := make([]string, 0, len(group))
	for _, f := range group {
		byPath[f.Path] = f
		paths = append(paths, f.Path)
	}

	classes, failures, err := p.opts.Hasher.SplitByContent(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("verification failed: %w", err)
	}
	for _, f := range failures {
		p.record(skipped, []skiplog.Record{skiplog.New(f.Path, skiplog.HashFailure, f.Error)})
	}

	var out [][]collector.FileRecord
	for _, class := range classes {
		if len(class) < 2 {
			continue
		}
		files := make([]collector.FileRecord, 0, len(class))
		for _, path := range class {
			files = append(files, byPath[path])
		}
		duplicates.SortByPath(files)
		out = append(out, files)
	}

	if len(classes) > 1 {
		p.logger.Warn("hash collision split by verification",
			zap.String("hash", group[0].FullHash),
			zap.Int("classes", len(classes)))
	}

	return out, nil
}

// hashAll feeds files to a hasher pool and collects the results in a single
// loop. It returns successful hashes by path; failures go to skipped.
func (p *Pipeline) hashAll(
	ctx context.Context,
	stage State,
	files []collector.FileRecord,
	hashFn func(context.Context, []hasher.FileToHash) <-chan hasher.Result,
	skipped *skiplog.Log,
) (map[string]string, error) {
	tracker := p.tracker(stage, len(files))
	hashes := make(map[string]string, len(files))
	p.logger.Debug("hashing",
		zap.Stringer("stage", stage),
		zap.Int("files", len(files)),
		zap.Int("workers", p.opts.Hasher.Workers()))

	toHash := make([]hasher.FileToHash, 0, len(files))
	for _, f := range files {
		toHash = append(toHash, hasher.FileToHash{Path: f.Path, Size: f.Size})
	}

	var failures []skiplog.Record
	for res := range hashFn(ctx, toHash) {
		tracker.Observe(1)
		if res.Error != nil {
			failures = append(failures, skiplog.New(res.Path, skiplog.HashFailure, res.Error))
			continue
		}
		hashes[res.Path] = res.Hash
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s interrupted: %w", stage, err)
	}
	tracker.Finish()

	// Workers finish in any order.
	sortRecords(failures)
	p.record(skipped, failures)

	return hashes, nil
}

func (p *Pipeline) record(skipped *skiplog.Log, records []skiplog.Record) {
	for _, r := range records {
		p.logger.Debug("skipped",
			zap.String("path", r.Path),
			zap.String("kind", string(r.Kind)),
			zap.String("detail", r.Detail))
	}
	skipped.Add(records...)
}

func (p *Pipeline) tracker(stage State, total int) *progress.Tracker {
	return progress.NewTracker(stage.String(), total, p.opts.Sink, p.opts.ProgressInterval, progress.WithClock(p.opts.Now))
}

func (p *Pipeline) transition(to State) {
	p.mu.Lock()
	from := p.state
	p.state = to
	p.mu.Unlock()

	p.logger.Debug("stage transition",
		zap.Stringer("from", from),
		zap.Stringer("to", to))
	if p.opts.OnTransition != nil {
		p.opts.OnTransition(from, to)
	}
}

func (p *Pipeline) hostname() string {
	if p.opts.Hostname != "" {
		return p.opts.Hostname
	}
	name, err := os.Hostname()
	if err != nil {
		p.logger.Warn("hostname unavailable", zap.Error(err))
		return "unknown"
	}
	return name
}

func sortRecords(records []skiplog.Record) {
	slices.SortFunc(records, func(a, b skiplog.Record) int {
		return strings.Compare(a.Path, b.Path)
	})
}
