package cas

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"bumd-go/internal/bumd"
)

func TestNewFileSystemStore(t *testing.T) {
	t.Run("creates layout and marker", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "repository")

		if _, err := NewFileSystemStore(root, SHA256); err != nil {
			t.Fatalf("NewFileSystemStore() error = %v", err)
		}
		if _, err := os.Stat(filepath.Join(root, "tmp")); err != nil {
			t.Errorf("tmp directory not created: %v", err)
		}
		data, err := os.ReadFile(filepath.Join(root, algorithmFile))
		if err != nil {
			t.Fatalf("reading marker: %v", err)
		}
		if string(data) != "sha256\n" {
			t.Errorf("marker = %q, want %q", data, "sha256\n")
		}
	})

	t.Run("reopens with same algorithm", func(t *testing.T) {
		root := t.TempDir()
		if _, err := NewFileSystemStore(root, BLAKE3); err != nil {
			t.Fatalf("first NewFileSystemStore() error = %v", err)
		}
		if _, err := NewFileSystemStore(root, BLAKE3); err != nil {
			t.Fatalf("second NewFileSystemStore() error = %v", err)
		}
	})

	t.Run("rejects algorithm mismatch", func(t *testing.T) {
		root := t.TempDir()
		if _, err := NewFileSystemStore(root, SHA256); err != nil {
			t.Fatalf("NewFileSystemStore() error = %v", err)
		}
		if _, err := NewFileSystemStore(root, BLAKE3); err == nil {
			t.Error("NewFileSystemStore() error = nil, want mismatch error")
		}
	})
}

func TestFileSystemStore_PutGet(t *testing.T) {
	s, err := NewFileSystemStore(t.TempDir(), SHA256)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}
	src := writeFile(t, t.TempDir(), "hello.txt", "hello world")

	exists, err := s.Exists(helloSHA256)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Fatal("Exists() = true before Put")
	}

	if err := s.Put(src, helloSHA256); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	objPath := filepath.Join(s.root, "b9", "4d", string(helloSHA256))
	if _, err := os.Stat(objPath); err != nil {
		t.Errorf("object not stored at %s: %v", objPath, err)
	}
	if exists, _ := s.Exists(helloSHA256); !exists {
		t.Error("Exists() = false after Put")
	}

	dest := filepath.Join(t.TempDir(), "restored.txt")
	if err := s.Get(helloSHA256, dest); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading restored file: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("restored content = %q, want %q", data, "hello world")
	}

	entries, err := os.ReadDir(s.tmpDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("tmp directory has %d leftover entries", len(entries))
	}
}

func TestFileSystemStore_Put_Idempotent(t *testing.T) {
	s, err := NewFileSystemStore(t.TempDir(), SHA256)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}
	src := writeFile(t, t.TempDir(), "hello.txt", "hello world")

	if err := s.Put(src, helloSHA256); err != nil {
		t.Fatalf("first Put() error = %v", err)
	}
	if err := s.Put(src, helloSHA256); err != nil {
		t.Fatalf("second Put() error = %v", err)
	}
}

func TestFileSystemStore_Put_Concurrent(t *testing.T) {
	s, err := NewFileSystemStore(t.TempDir(), SHA256)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}
	src := writeFile(t, t.TempDir(), "hello.txt", "hello world")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Put(src, helloSHA256)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Put() error = %v", err)
		}
	}
	if exists, _ := s.Exists(helloSHA256); !exists {
		t.Error("Exists() = false after concurrent Put")
	}
}

func TestFileSystemStore_Put_Corruption(t *testing.T) {
	s, err := NewFileSystemStore(t.TempDir(), SHA256)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}
	src := writeFile(t, t.TempDir(), "other.txt", "not hello world")

	err = s.Put(src, helloSHA256)
	if !errors.Is(err, bumd.ErrCorruption) {
		t.Fatalf("Put() error = %v, want ErrCorruption", err)
	}
	if exists, _ := s.Exists(helloSHA256); exists {
		t.Error("Exists() = true after rejected Put")
	}
	entries, _ := os.ReadDir(s.tmpDir)
	if len(entries) != 0 {
		t.Errorf("tmp directory has %d leftover entries", len(entries))
	}
}

func TestFileSystemStore_Put_MissingSource(t *testing.T) {
	s, err := NewFileSystemStore(t.TempDir(), SHA256)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}

	err = s.Put(filepath.Join(t.TempDir(), "gone"), helloSHA256)
	if !bumd.IsEntryError(err) {
		t.Errorf("Put() error = %v, want entry error", err)
	}
}

func TestFileSystemStore_Get_NotFound(t *testing.T) {
	s, err := NewFileSystemStore(t.TempDir(), SHA256)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}

	err = s.Get(helloSHA256, filepath.Join(t.TempDir(), "out"))
	if !errors.Is(err, bumd.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestFileSystemStore_InvalidKey(t *testing.T) {
	s, err := NewFileSystemStore(t.TempDir(), SHA256)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}

	if _, err := s.Exists("../escape"); err == nil {
		t.Error("Exists() error = nil for invalid key")
	}
	if err := s.Get("zz", filepath.Join(t.TempDir(), "out")); err == nil {
		t.Error("Get() error = nil for invalid key")
	}
}
