package hasher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"dupaudit/internal/iotimeout"
)

const compareChunkSize = 64 * 1024

// FileError attributes a read failure to one file of a comparison.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// SameContent reports whether two files hold identical bytes.
func (h *Hasher) SameContent(ctx context.Context, a, b string) (bool, error) {
	same, err := h.compare(ctx, a, b)
	if err != nil {
		var fe *FileError
		if !errors.As(err, &fe) && ctx.Err() == nil {
			// Timeouts cannot be attributed to either side; blame the candidate.
			err = &FileError{Path: b, Err: err}
		}
	}
	return same, err
}

// SplitByContent partitions paths into classes of byte-identical files by
// comparing each path against the first member of every existing class.
// Files that cannot be read are returned as failures and left out of every
// class. Only context cancellation returns an error.
func (h *Hasher) SplitByContent(ctx context.Context, paths []string) ([][]string, []Result, error) {
	var classes [][]string
	var failures []Result

	for _, p := range paths {
		placed, failed := false, false

		for i := 0; i < len(classes); {
			same, err := h.SameContent(ctx, classes[i][0], p)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, nil, ctxErr
				}

				var fe *FileError
				if errors.As(err, &fe) && fe.Path == classes[i][0] {
					// Remaining members matched the old representative, so
					// they still match each other.
					failures = append(failures, Result{Path: fe.Path, Error: err})
					classes[i] = classes[i][1:]
					if len(classes[i]) == 0 {
						classes = append(classes[:i], classes[i+1:]...)
					}
					continue
				}

				failures = append(failures, Result{Path: p, Error: err})
				failed = true
				break
			}

			if same {
				classes[i] = append(classes[i], p)
				placed = true
				break
			}
			i++
		}

		if !placed && !failed {
			classes = append(classes, []string{p})
		}
	}

	return classes, failures, nil
}

func (h *Hasher) compare(ctx context.Context, a, b string) (bool, error) {
	type outcome struct {
		same bool
	}

	res, err := iotimeout.DoLimited(ctx, h.limit, h.timeout, func() (outcome, error) {
		fa, err := os.Open(a)
		if err != nil {
			return outcome{}, &FileError{Path: a, Err: err}
		}
		defer fa.Close()

		fb, err := os.Open(b)
		if err != nil {
			return outcome{}, &FileError{Path: b, Err: err}
		}
		defer fb.Close()

		bufA := make([]byte, compareChunkSize)
		bufB := make([]byte, compareChunkSize)

		for {
			na, errA := io.ReadFull(fa, bufA)
			if errA != nil && !isShortRead(errA) {
				return outcome{}, &FileError{Path: a, Err: errA}
			}
			nb, errB := io.ReadFull(fb, bufB)
			if errB != nil && !isShortRead(errB) {
				return outcome{}, &FileError{Path: b, Err: errB}
			}

			if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
				return outcome{same: false}, nil
			}
			if errA != nil || errB != nil {
				return outcome{same: errA != nil && errB != nil}, nil
			}
		}
	})
	if err != nil {
		return false, err
	}
	return res.same, nil
}

func isShortRead(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
