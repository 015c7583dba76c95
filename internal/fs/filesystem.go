package fs

import (
	"io/fs"
	"os"
	"sort"
	"time"

	"golang.org/x/sys/unix"

	"bumd-go/internal/bumd"
)

// OSFilesystem is the real filesystem implementation of bumd.Filesystem.
// Attribute changes go through unix calls so setuid, setgid and sticky bits
// and nanosecond timestamps survive unchanged.
type OSFilesystem struct {
	exclude *ExcludeMatcher
}

// NewOSFilesystem creates a filesystem that skips entries matching the
// exclude patterns.
func NewOSFilesystem(excludePatterns []string) *OSFilesystem {
	return &OSFilesystem{exclude: NewExcludeMatcher(excludePatterns)}
}

func (f *OSFilesystem) Lstat(path string) (fs.FileInfo, error) {
	return os.Lstat(path)
}

// ReadDir returns the directory entries sorted by name.
func (f *OSFilesystem) ReadDir(path string) ([]fs.DirEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

func (f *OSFilesystem) Readlink(path string) (string, error) {
	return os.Readlink(path)
}

func (f *OSFilesystem) IsExcluded(relativePath string) bool {
	return f.exclude.Match(relativePath)
}

func (f *OSFilesystem) MkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

func (f *OSFilesystem) Symlink(target, path string) error {
	return os.Symlink(target, path)
}

func (f *OSFilesystem) Remove(path string) error {
	return os.Remove(path)
}

func (f *OSFilesystem) Lchown(path string, uid, gid uint32) error {
	if err := unix.Lchown(path, int(uid), int(gid)); err != nil {
		return &fs.PathError{Op: "lchown", Path: path, Err: err}
	}
	return nil
}

func (f *OSFilesystem) Chmod(path string, mode uint32) error {
	if err := unix.Chmod(path, mode&0o7777); err != nil {
		return &fs.PathError{Op: "chmod", Path: path, Err: err}
	}
	return nil
}

func (f *OSFilesystem) SetModTime(path string, t time.Time) error {
	ts := unix.NsecToTimespec(t.UnixNano())
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, path, []unix.Timespec{ts, ts}, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return &fs.PathError{Op: "utimensat", Path: path, Err: err}
	}
	return nil
}

// StatData extracts Unix-specific stat data from a FileInfo.
func (f *OSFilesystem) StatData(info fs.FileInfo) (*bumd.StatData, error) {
	return extractStatData(info)
}

// Compile-time check that OSFilesystem implements bumd.Filesystem interface
var _ bumd.Filesystem = (*OSFilesystem)(nil)
