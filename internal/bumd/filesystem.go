package bumd

import (
	"io/fs"
	"time"
)

// StatData holds the unix attributes a backup records for an entry.
type StatData struct {
	UID     uint32
	GID     uint32
	Mode    uint32 // st_mode & 07777
	ModTime time.Time
}

// Filesystem abstracts the source tree walked by a backup and the
// destination tree written by a restore.
type Filesystem interface {
	// Lstat returns info without following a final symlink.
	Lstat(path string) (fs.FileInfo, error)

	// ReadDir returns the entries of a directory sorted by name.
	ReadDir(path string) ([]fs.DirEntry, error)

	Readlink(path string) (string, error)

	// StatData extracts owner, group, permission bits and mtime.
	StatData(info fs.FileInfo) (*StatData, error)

	// IsExcluded reports whether a path, relative to the subject being
	// walked, matches a configured exclude pattern.
	IsExcluded(relativePath string) bool

	MkdirAll(path string) error
	Symlink(target, path string) error
	Remove(path string) error
	Lchown(path string, uid, gid uint32) error
	// Chmod sets raw unix permission bits, including setuid, setgid and
	// sticky.
	Chmod(path string, mode uint32) error
	// SetModTime sets both access and modification time of path to t without
	// following a final symlink.
	SetModTime(path string, t time.Time) error
}
