package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func CreateFile(t *testing.T, path, content string) {
	t.Helper()
	createFileBytes(t, path, []byte(content))
}

func CreateFileBytes(t *testing.T, path string, content []byte) {
	t.Helper()
	createFileBytes(t, path, content)
}

// CreateSymlink creates a symbolic link at path pointing to target.
func CreateSymlink(t *testing.T, target, path string) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("symlinks require elevated privileges on windows")
	}

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.Symlink(target, path))
}

// MakeUnreadable removes all permissions from path and restores them on cleanup.
// Tests are skipped when permission bits are not enforced (root, windows).
func MakeUnreadable(t *testing.T, path string) {
	t.Helper()

	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}

	info, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, os.Chmod(path, 0))
	t.Cleanup(func() {
		_ = os.Chmod(path, info.Mode().Perm())
	})
}

func createFileBytes(t *testing.T, path string, content []byte) {
	t.Helper()

	err := os.MkdirAll(filepath.Dir(path), 0o755)
	require.NoError(t, err)

	err = os.WriteFile(path, content, 0o644)
	require.NoError(t, err)
}
