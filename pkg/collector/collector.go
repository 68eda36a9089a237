// Package collector walks directory trees and records metadata for every
// regular file it finds. Symbolic links are reported, never followed.
package collector

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"dupaudit/internal/iotimeout"
	"dupaudit/pkg/skiplog"
)

// ProgressEvery is how many files are found between OnProgress calls.
const ProgressEvery = 100

// FileRecord holds metadata about a file.
type FileRecord struct {
	Name      string    // Base name
	Path      string    // Absolute path
	Size      int64     // File size in bytes
	CreatedAt time.Time // Birth time, or modification time where unavailable
	FullHash  string    // Set by the full-hash stage
}

// Options configures the collector behavior.
type Options struct {
	// Extensions is an allow-list of extensions (".jpg", "PNG", ...). Empty allows all.
	Extensions []string
	// SkipFiles is a list of filenames to skip (e.g., .DS_Store)
	SkipFiles []string
	// SkipDirs is a list of directory names to skip
	SkipDirs []string
	// Timeout bounds each directory listing and stat. Zero means no limit.
	Timeout time.Duration
	// OnProgress receives the number of files found so far.
	OnProgress func(found int)
}

// Result is the output of a walk.
type Result struct {
	Files   []FileRecord
	Skipped []skiplog.Record
}

// Collector collects file metadata from directory trees.
type Collector struct {
	extensions map[string]bool
	skipFiles  map[string]bool
	skipDirs   map[string]bool
	timeout    time.Duration
	onProgress func(found int)
	readDir    func(name string) ([]os.DirEntry, error)
}

// New creates a new Collector with the given options.
func New(opts Options) *Collector {
	c := &Collector{
		skipFiles:  make(map[string]bool),
		skipDirs:   make(map[string]bool),
		timeout:    opts.Timeout,
		onProgress: opts.OnProgress,
		readDir:    os.ReadDir,
	}

	if exts := NormalizeExtensions(opts.Extensions); len(exts) > 0 {
		c.extensions = make(map[string]bool, len(exts))
		for _, e := range exts {
			c.extensions[e] = true
		}
	}
	for _, f := range opts.SkipFiles {
		c.skipFiles[f] = true
	}
	for _, d := range opts.SkipDirs {
		c.skipDirs[d] = true
	}

	return c
}

// WithProgress returns a copy of c that also reports progress to fn.
func (c *Collector) WithProgress(fn func(found int)) *Collector {
	if fn == nil {
		return c
	}

	cp := *c
	prev := c.onProgress
	cp.onProgress = func(found int) {
		if prev != nil {
			prev(found)
		}
		fn(found)
	}
	return &cp
}

// NormalizeExtensions case-folds extensions and makes them dot-prefixed.
// Blank entries and duplicates are dropped.
func NormalizeExtensions(exts []string) []string {
	fold := cases.Fold()
	seen := make(map[string]bool, len(exts))
	out := make([]string, 0, len(exts))

	for _, e := range exts {
		e = strings.TrimSpace(e)
		if e == "" || e == "." {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		e = fold.String(e)
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}

	return out
}

// Collect walks every root in order and collects metadata for all regular
// files. Unreadable directories and entries become AccessDenied records and
// symbolic links become SymbolicLinkSkipped records; neither stops the walk.
// A path reachable from more than one root is recorded once.
// Only context cancellation returns an error.
func (c *Collector) Collect(ctx context.Context, roots ...string) (Result, error) {
	w := walk{
		c:     c,
		files: make(map[string]bool),
		dirs:  make(map[string]bool),
	}

	for _, root := range roots {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
		if err := w.root(ctx, root); err != nil {
			return Result{}, err
		}
	}

	if c.onProgress != nil {
		c.onProgress(len(w.result.Files))
	}

	return w.result, nil
}

type walk struct {
	c      *Collector
	result Result
	files  map[string]bool
	dirs   map[string]bool
}

func (w *walk) root(ctx context.Context, root string) error {
	info, err := w.lstat(ctx, root)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		w.skip(root, skiplog.AccessDenied, err)
		return nil
	}

	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		w.skip(root, skiplog.SymbolicLinkSkipped, nil)
		return nil
	case info.IsDir():
		return w.tree(ctx, root)
	case info.Mode().IsRegular():
		w.file(root, info)
	}

	return nil
}

// tree walks dir with an explicit stack so deep trees cannot exhaust the
// goroutine stack. Entries are visited in name order.
func (w *walk) tree(ctx context.Context, dir string) error {
	stack := []string{dir}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if w.dirs[current] {
			continue
		}
		w.dirs[current] = true

		// A failed listing may still carry the entries read before the error.
		entries, err := w.readDir(ctx, current)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			w.skip(current, skiplog.AccessDenied, err)
		}

		var subdirs []string
		for _, entry := range entries {
			path := filepath.Join(current, entry.Name())

			if entry.Type()&fs.ModeSymlink != 0 {
				w.skip(path, skiplog.SymbolicLinkSkipped, nil)
				continue
			}

			if entry.IsDir() {
				if !w.c.skipDirs[entry.Name()] {
					subdirs = append(subdirs, path)
				}
				continue
			}

			if !entry.Type().IsRegular() || !w.wanted(entry.Name()) {
				continue
			}

			info, err := w.info(ctx, entry)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				w.skip(path, skiplog.AccessDenied, err)
				continue
			}

			// The entry may have been replaced between listing and stat.
			if info.Mode()&fs.ModeSymlink != 0 {
				w.skip(path, skiplog.SymbolicLinkSkipped, nil)
				continue
			}
			if !info.Mode().IsRegular() {
				continue
			}

			w.file(path, info)
		}

		// Push in reverse so the stack pops subdirectories in name order.
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	return nil
}

func (w *walk) wanted(name string) bool {
	if w.c.skipFiles[name] {
		return false
	}
	if w.c.extensions == nil {
		return true
	}
	return w.c.extensions[cases.Fold().String(filepath.Ext(name))]
}

func (w *walk) file(path string, info fs.FileInfo) {
	if w.files[path] {
		return
	}
	w.files[path] = true

	w.result.Files = append(w.result.Files, FileRecord{
		Name:      info.Name(),
		Path:      path,
		Size:      info.Size(),
		CreatedAt: createdAt(path, info),
	})

	if w.c.onProgress != nil && len(w.result.Files)%ProgressEvery == 0 {
		w.c.onProgress(len(w.result.Files))
	}
}

func (w *walk) skip(path string, kind skiplog.Kind, err error) {
	w.result.Skipped = append(w.result.Skipped, skiplog.New(path, kind, err))
}

func (w *walk) readDir(ctx context.Context, dir string) ([]os.DirEntry, error) {
	entries, err := iotimeout.Do(ctx, w.c.timeout, func() ([]os.DirEntry, error) {
		return w.c.readDir(dir)
	})

	slices.SortFunc(entries, func(a, b os.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})
	if err != nil {
		return entries, fmt.Errorf("read directory: %w", err)
	}
	return entries, nil
}

func (w *walk) info(ctx context.Context, entry os.DirEntry) (fs.FileInfo, error) {
	info, err := iotimeout.Do(ctx, w.c.timeout, entry.Info)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	return info, nil
}

func (w *walk) lstat(ctx context.Context, path string) (fs.FileInfo, error) {
	info, err := iotimeout.Do(ctx, w.c.timeout, func() (fs.FileInfo, error) {
		return os.Lstat(path)
	})
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	return info, nil
}
