//go:build linux

package collector

import (
	"io/fs"
	"time"

	"golang.org/x/sys/unix"
)

// createdAt returns the file's birth time via statx(2), falling back to the
// modification time when the filesystem does not record one.
func createdAt(path string, info fs.FileInfo) time.Time {
	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW, unix.STATX_BTIME, &stx)
	if err != nil || stx.Mask&unix.STATX_BTIME == 0 {
		return info.ModTime().UTC()
	}

	return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec)).UTC()
}
