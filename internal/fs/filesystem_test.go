package fs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOSFilesystem_ReadDir_Sorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"c", "a", "b"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}

	entries, err := NewOSFilesystem(nil).ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if len(names) != 3 || names[0] != "a" || names[1] != "b" || names[2] != "c" {
		t.Errorf("ReadDir() = %v, want [a b c]", names)
	}
}

func TestOSFilesystem_StatData(t *testing.T) {
	f := NewOSFilesystem(nil)
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := f.Chmod(path, 0o4751); err != nil {
		t.Fatalf("Chmod() error = %v", err)
	}
	mtime := time.Date(2021, 3, 4, 5, 6, 7, 891011121, time.UTC)
	if err := f.SetModTime(path, mtime); err != nil {
		t.Fatalf("SetModTime() error = %v", err)
	}

	info, err := f.Lstat(path)
	if err != nil {
		t.Fatalf("Lstat() error = %v", err)
	}
	st, err := f.StatData(info)
	if err != nil {
		t.Fatalf("StatData() error = %v", err)
	}

	if st.Mode != 0o4751 {
		t.Errorf("Mode = %o, want 4751", st.Mode)
	}
	if !st.ModTime.Equal(mtime) {
		t.Errorf("ModTime = %v, want %v", st.ModTime, mtime)
	}
	if st.UID != uint32(os.Getuid()) || st.GID != uint32(os.Getgid()) {
		t.Errorf("owner = %d:%d, want %d:%d", st.UID, st.GID, os.Getuid(), os.Getgid())
	}
}

func TestOSFilesystem_SetModTime_Symlink(t *testing.T) {
	f := NewOSFilesystem(nil)
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	if err := os.WriteFile(target, nil, 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	before, err := os.Stat(target)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}

	link := filepath.Join(dir, "link")
	if err := f.Symlink("target", link); err != nil {
		t.Fatalf("Symlink() error = %v", err)
	}
	mtime := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := f.SetModTime(link, mtime); err != nil {
		t.Fatalf("SetModTime() error = %v", err)
	}

	after, err := os.Stat(target)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("SetModTime() on a link changed its target")
	}
	linfo, err := f.Lstat(link)
	if err != nil {
		t.Fatalf("Lstat() error = %v", err)
	}
	if !linfo.ModTime().Equal(mtime) {
		t.Errorf("link mtime = %v, want %v", linfo.ModTime(), mtime)
	}
}

func TestOSFilesystem_IsExcluded(t *testing.T) {
	f := NewOSFilesystem([]string{"*.tmp"})
	if !f.IsExcluded("x.tmp") {
		t.Error("IsExcluded(x.tmp) = false")
	}
	if f.IsExcluded("x.txt") {
		t.Error("IsExcluded(x.txt) = true")
	}
}
