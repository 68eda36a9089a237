// Package hasher provides file fingerprinting with parallel processing support.
//
// Two kinds of fingerprint are produced: a cheap partial hash (xxhash64 over
// the first PartialHashSize bytes) used to prune candidates, and a full
// content hash (SHA-256 by default, or BLAKE3) used to confirm duplicates.
package hasher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash"
	"github.com/zeebo/blake3"

	"dupaudit/internal/iotimeout"
)

// PartialHashSize is the number of leading bytes covered by the partial hash.
const PartialHashSize = 16384

// Supported full-hash algorithms.
const (
	SHA256 = "sha256"
	BLAKE3 = "blake3"
)

var algorithms = map[string]func() hash.Hash{
	SHA256: sha256.New,
	BLAKE3: func() hash.Hash { return blake3.New() },
}

// ErrUnknownAlgorithm is returned for an unsupported algorithm name.
var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

// Algorithms returns the supported full-hash algorithm names, sorted.
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// FileToHash identifies a file to fingerprint.
type FileToHash struct {
	Path string
	Size int64
}

// Result contains the result of hashing a single file.
type Result struct {
	Path  string
	Hash  string
	Size  int64
	Error error
}

// Hasher computes file fingerprints with optional parallel processing.
type Hasher struct {
	workers   int
	timeout   time.Duration
	algorithm string
	newHash   func() hash.Hash
	limit     *iotimeout.Limiter
	err       error
}

// Option configures a Hasher.
type Option func(*Hasher)

// WithWorkers sets the number of worker goroutines for parallel hashing,
// which is also the maximum number of files open at once.
// Default is runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(h *Hasher) {
		if n > 0 {
			h.workers = n
		}
	}
}

// WithTimeout bounds each single-file read. Zero disables the limit.
func WithTimeout(d time.Duration) Option {
	return func(h *Hasher) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithAlgorithm selects the full-hash algorithm by name. An unknown name
// makes New return ErrUnknownAlgorithm.
func WithAlgorithm(name string) Option {
	return func(h *Hasher) {
		if name == "" {
			return
		}
		fn, ok := algorithms[name]
		if !ok {
			h.err = fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
			return
		}
		h.algorithm = name
		h.newHash = fn
	}
}

// WithHashFunc installs a custom full-hash function under the given name.
func WithHashFunc(name string, fn func() hash.Hash) Option {
	return func(h *Hasher) {
		if fn == nil {
			return
		}
		h.algorithm = name
		h.newHash = fn
	}
}

// New creates a new Hasher with the given options.
func New(opts ...Option) (*Hasher, error) {
	h := &Hasher{
		workers:   runtime.NumCPU(),
		algorithm: SHA256,
		newHash:   sha256.New,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.err != nil {
		return nil, h.err
	}
	h.limit = iotimeout.NewLimiter(h.workers)
	return h, nil
}

// Workers returns the number of worker goroutines configured.
func (h *Hasher) Workers() int {
	return h.workers
}

// Algorithm returns the name of the full-hash algorithm.
func (h *Hasher) Algorithm() string {
	return h.algorithm
}

// ComputeHash computes the full content hash of a file.
func (h *Hasher) ComputeHash(ctx context.Context, path string) (string, error) {
	return iotimeout.DoLimited(ctx, h.limit, h.timeout, func() (string, error) {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()

		sum := h.newHash()
		if _, err := io.Copy(sum, f); err != nil {
			return "", err
		}

		return hex.EncodeToString(sum.Sum(nil)), nil
	})
}

// ComputePartialHash hashes the first PartialHashSize bytes of a file, or
// the whole file when it is smaller.
func (h *Hasher) ComputePartialHash(ctx context.Context, path string) (string, error) {
	return iotimeout.DoLimited(ctx, h.limit, h.timeout, func() (string, error) {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()

		sum := xxhash.New()
		if _, err := io.CopyN(sum, f, PartialHashSize); err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}

		return hex.EncodeToString(sum.Sum(nil)), nil
	})
}

// HashFiles computes full hashes for multiple files concurrently.
// The channel is closed when all files have been processed or ctx is done.
func (h *Hasher) HashFiles(ctx context.Context, files []FileToHash) <-chan Result {
	return h.run(ctx, files, h.ComputeHash)
}

// HashPartialFiles computes partial hashes for multiple files concurrently.
func (h *Hasher) HashPartialFiles(ctx context.Context, files []FileToHash) <-chan Result {
	return h.run(ctx, files, h.ComputePartialHash)
}

func (h *Hasher) run(ctx context.Context, files []FileToHash, compute func(context.Context, string) (string, error)) <-chan Result {
	results := make(chan Result, h.workers)

	go func() {
		defer close(results)

		work := make(chan FileToHash, h.workers)

		var wg sync.WaitGroup
		for range h.workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for file := range work {
					sum, err := compute(ctx, file.Path)
					results <- Result{
						Path:  file.Path,
						Hash:  sum,
						Size:  file.Size,
						Error: err,
					}
				}
			}()
		}

	feed:
		for _, file := range files {
			select {
			case work <- file:
			case <-ctx.Done():
				break feed
			}
		}
		close(work)

		wg.Wait()
	}()

	return results
}
