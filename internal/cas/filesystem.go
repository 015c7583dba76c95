package cas

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"

	"bumd-go/internal/bumd"
	"bumd-go/internal/model"
)

// algorithmFile records which digest a repository was created with.
const algorithmFile = "HASH"

// FileSystemStore is a ContentStore kept as files in a directory tree:
//
//	<root>/
//	  HASH            (digest algorithm name)
//	  tmp/            (in-flight writes)
//	  ab/cd/abcd...   (objects, fanned out by the first two key bytes)
type FileSystemStore struct {
	root   string
	tmpDir string
	alg    Algorithm
	puts   singleflight.Group
}

// NewFileSystemStore opens or creates a repository rooted at root. An
// existing repository must have been created with the same algorithm.
func NewFileSystemStore(root string, alg Algorithm) (*FileSystemStore, error) {
	tmpDir := filepath.Join(root, "tmp")
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create repository directory: %w", err)
	}

	markerPath := filepath.Join(root, algorithmFile)
	data, err := os.ReadFile(markerPath)
	switch {
	case err == nil:
		existing := Algorithm(strings.TrimSpace(string(data)))
		if existing != alg {
			return nil, fmt.Errorf("repository %s uses %s, configured %s", root, existing, alg)
		}
	case errors.Is(err, fs.ErrNotExist):
		if err := os.WriteFile(markerPath, []byte(string(alg)+"\n"), 0644); err != nil {
			return nil, fmt.Errorf("writing algorithm marker: %w", err)
		}
	default:
		return nil, fmt.Errorf("reading algorithm marker: %w", err)
	}

	return &FileSystemStore{root: root, tmpDir: tmpDir, alg: alg}, nil
}

// objectPath returns where key is stored.
func (s *FileSystemStore) objectPath(key model.ContentKey) string {
	k := string(key)
	return filepath.Join(s.root, k[0:2], k[2:4], k)
}

// Exists reports whether key is stored.
func (s *FileSystemStore) Exists(key model.ContentKey) (bool, error) {
	if !ValidKey(key) {
		return false, fmt.Errorf("invalid content key: %q", key)
	}
	_, err := os.Stat(s.objectPath(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking object: %w", err)
}

// Put copies srcPath into the repository under key, verifying the digest on
// the way. Concurrent puts of one key share a single write.
func (s *FileSystemStore) Put(srcPath string, key model.ContentKey) error {
	if !ValidKey(key) {
		return fmt.Errorf("invalid content key: %q", key)
	}
	_, err, _ := s.puts.Do(string(key), func() (any, error) {
		return nil, s.put(srcPath, key)
	})
	return err
}

func (s *FileSystemStore) put(srcPath string, key model.ContentKey) error {
	destPath := s.objectPath(key)

	// Objects are immutable once written.
	if _, err := os.Stat(destPath); err == nil {
		return nil
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return &bumd.EntryError{Op: "open", Path: srcPath, Err: err}
	}
	defer src.Close()

	tmpFile, err := os.CreateTemp(s.tmpDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	h := s.alg.newHash()
	if _, err := io.Copy(io.MultiWriter(tmpFile, h), &sourceReader{r: src, path: srcPath}); err != nil {
		tmpFile.Close()
		var ee *bumd.EntryError
		if errors.As(err, &ee) {
			return ee
		}
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if got := hex.EncodeToString(h.Sum(nil)); got != string(key) {
		return fmt.Errorf("%w: %s hashes to %s, expected %s", bumd.ErrCorruption, srcPath, got, key)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}
	if err := os.Chmod(tmpPath, 0444); err != nil {
		return fmt.Errorf("failed to set object mode: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

// Get writes the object to destPath through a temp file in the destination
// directory, replacing any regular file already there.
func (s *FileSystemStore) Get(key model.ContentKey, destPath string) error {
	if !ValidKey(key) {
		return fmt.Errorf("invalid content key: %q", key)
	}
	src, err := os.Open(s.objectPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("content %s: %w", key, bumd.ErrNotFound)
		}
		return fmt.Errorf("failed to open object: %w", err)
	}
	defer src.Close()

	return writeAtomic(destPath, src)
}

// HashOf computes the content key of a file.
func (s *FileSystemStore) HashOf(path string) (model.ContentKey, error) {
	return hashFile(s.alg, path)
}

// Algorithm returns the digest the repository was opened with.
func (s *FileSystemStore) Algorithm() Algorithm { return s.alg }

// writeAtomic copies r into destPath via a temp file and rename in the same
// directory.
func writeAtomic(destPath string, r io.Reader) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".bumd-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

// sourceReader marks read failures of the file being stored as entry errors,
// so they can be told apart from write failures in the repository.
type sourceReader struct {
	r    io.Reader
	path string
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		return n, &bumd.EntryError{Op: "read", Path: s.path, Err: err}
	}
	return n, err
}

// Compile-time check that FileSystemStore implements bumd.ContentStore
var _ bumd.ContentStore = (*FileSystemStore)(nil)
