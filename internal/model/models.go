package model

import (
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a backup run.
type RunStatus string

const (
	StatusRunning  RunStatus = "Running"
	StatusComplete RunStatus = "Complete"
	StatusAborted  RunStatus = "Aborted"
	StatusFailed   RunStatus = "Failed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s RunStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusAborted || s == StatusFailed
}

// ParseRunStatus converts a stored status name into a RunStatus.
func ParseRunStatus(s string) (RunStatus, error) {
	switch RunStatus(s) {
	case StatusRunning, StatusComplete, StatusAborted, StatusFailed:
		return RunStatus(s), nil
	default:
		return "", fmt.Errorf("unknown run status: %q", s)
	}
}

// Run is one backup snapshot of a host.
type Run struct {
	ID         int64
	Host       string
	StartedAt  time.Time
	FinishedAt *time.Time // nil while the run is in progress
	Status     RunStatus
}

// ContentKey is the lowercase hex digest of a file's full content.
type ContentKey string

// DirectoryRecord is the state of one directory captured by a run.
type DirectoryRecord struct {
	RunID   int64
	Path    string // logical path
	UID     uint32
	GID     uint32
	Mode    uint32 // permission bits including setuid, setgid and sticky
	ModTime time.Time
}

// FileRecord is the state of one regular file captured by a run.
type FileRecord struct {
	RunID   int64
	Path    string
	UID     uint32
	GID     uint32
	Mode    uint32
	Size    int64
	ModTime time.Time
	Key     ContentKey
}

// LinkRecord is a symbolic link captured by a run. The target is stored
// verbatim and never resolved.
type LinkRecord struct {
	RunID  int64
	Path   string
	Target string
}

// EntryType distinguishes the kinds of entries returned by a search.
type EntryType string

const (
	EntryDir  EntryType = "DIR"
	EntryLink EntryType = "LINK"
	EntryFile EntryType = "FILE"
)

// SearchResult is one path match across all hosts and runs.
// Time is the entry's mtime for directories and files, and the run start for
// links.
type SearchResult struct {
	Type  EntryType
	Host  string
	RunID int64
	Time  time.Time
	Path  string
}

// FileVersion is one recorded state of a logical file path.
type FileVersion struct {
	RunID        int64
	RunStartedAt time.Time
	RunStatus    RunStatus
	Size         int64
	ModTime      time.Time
	Key          ContentKey
}
