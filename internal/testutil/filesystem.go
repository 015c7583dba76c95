package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bumd-go/internal/bumd"
)

// FaultyFilesystem wraps a Filesystem and injects failures or hooks into
// the walk.
type FaultyFilesystem struct {
	bumd.Filesystem

	// LstatErrors maps a path to the error Lstat returns for it.
	LstatErrors map[string]error
	// ReadDirErrors maps a path to the error ReadDir returns for it.
	ReadDirErrors map[string]error
	// OnLstat is called before every Lstat.
	OnLstat func(path string)

	mu     sync.Mutex
	lstats int
}

// NewFaultyFilesystem wraps fsys with no failures configured.
func NewFaultyFilesystem(fsys bumd.Filesystem) *FaultyFilesystem {
	return &FaultyFilesystem{
		Filesystem:    fsys,
		LstatErrors:   make(map[string]error),
		ReadDirErrors: make(map[string]error),
	}
}

func (f *FaultyFilesystem) Lstat(path string) (fs.FileInfo, error) {
	f.mu.Lock()
	f.lstats++
	f.mu.Unlock()
	if f.OnLstat != nil {
		f.OnLstat(path)
	}
	if err, ok := f.LstatErrors[path]; ok {
		return nil, &fs.PathError{Op: "lstat", Path: path, Err: err}
	}
	return f.Filesystem.Lstat(path)
}

func (f *FaultyFilesystem) ReadDir(path string) ([]fs.DirEntry, error) {
	if err, ok := f.ReadDirErrors[path]; ok {
		return nil, &fs.PathError{Op: "readdirent", Path: path, Err: err}
	}
	return f.Filesystem.ReadDir(path)
}

// Lstats returns how many times Lstat was called.
func (f *FaultyFilesystem) Lstats() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lstats
}

// WriteFile creates a file with content and mode under root, creating
// parents as needed, and returns its path.
func WriteFile(t *testing.T, root, rel string, content []byte, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, content, mode); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.Chmod(path, mode); err != nil {
		t.Fatalf("Chmod() error = %v", err)
	}
	return path
}

// Mkdir creates a directory under root and returns its path.
func Mkdir(t *testing.T, root, rel string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	return path
}

// Symlink creates a symlink under root pointing at target and returns its
// path.
func Symlink(t *testing.T, root, rel, target string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.Symlink(target, path); err != nil {
		t.Fatalf("Symlink() error = %v", err)
	}
	return path
}

// SetModTime sets the access and modification time of path.
func SetModTime(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}
}

// ReadFile returns the content of path.
func ReadFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	return data
}
