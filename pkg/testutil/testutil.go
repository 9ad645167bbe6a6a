package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SocketDir creates a short-lived directory for unix sockets. Socket paths
// are limited to about a hundred bytes, which t.TempDir can exceed.
func SocketDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "elv")
	if err != nil {
		t.Fatalf("Failed to create socket directory: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

// CreateFile creates a file with the given content, including parent
// directories
func CreateFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create parent directories for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create file %s: %v", path, err)
	}
	return path
}

// CreateSymlink creates a symbolic link pointing to target
func CreateSymlink(t *testing.T, target, link string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(link), 0755); err != nil {
		t.Fatalf("Failed to create parent directory for symlink %s: %v", link, err)
	}
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("Failed to create symlink %s -> %s: %v", link, target, err)
	}
}

// AssertSymlink checks that link is a symlink pointing to expectedTarget
func AssertSymlink(t *testing.T, link, expectedTarget string) {
	t.Helper()
	actual, err := os.Readlink(link)
	if err != nil {
		t.Fatalf("Symlink %s does not exist: %v", link, err)
	}
	if actual != expectedTarget {
		t.Errorf("Symlink %s target mismatch\nExpected: %s\nActual: %s", link, expectedTarget, actual)
	}
}

// AssertNoPath checks that nothing, not even a dangling link, is at path
func AssertNoPath(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Lstat(path); !os.IsNotExist(err) {
		t.Errorf("Expected %s to be absent, got err=%v", path, err)
	}
}
