package bumd

import (
	"time"

	"bumd-go/internal/model"
)

// MetadataStore persists hosts, runs and the per-run directory, file and
// link records. Lookups that find nothing return nil with no error.
type MetadataStore interface {
	// Run lifecycle

	// CreateRun inserts a Running run for host and commits it immediately.
	CreateRun(host string, startedAt time.Time) (int64, error)
	// SetRunStatus moves a Running run to a terminal status.
	SetRunStatus(runID int64, status model.RunStatus) error
	// SetRunEndTime sets the end time of a run that has none.
	SetRunEndTime(runID int64, t time.Time) error
	// FinishRun sets the terminal status and end time in one transaction.
	FinishRun(runID int64, status model.RunStatus, t time.Time) error
	GetRun(runID int64) (*model.Run, error)
	// LatestRun returns the most recently started run of host with the given
	// status.
	LatestRun(host string, status model.RunStatus) (*model.Run, error)
	// ListRuns returns the runs of host ordered by start time. An empty host
	// matches every host. Nil bounds are open.
	ListRuns(host string, notBefore, notAfter *time.Time) ([]*model.Run, error)

	// Begin opens a write batch. Records become visible on Commit.
	Begin() (MetadataTx, error)

	// FindReusableContentKey returns the key of the most recent record of
	// the same host and logical path with equal size and mtime, taken only
	// from runs that have finished.
	FindReusableContentKey(host, path string, size int64, modTime time.Time) (model.ContentKey, bool, error)

	// Restore listing. Empty filters select every row of the run; otherwise a
	// row matches when its path equals a filter or lies beneath it.
	ListDirectories(runID int64, filters []string) ([]*model.DirectoryRecord, error)
	ListLinks(runID int64, filters []string) ([]*model.LinkRecord, error)
	ListFiles(runID int64, filters []string) ([]*model.FileRecord, error)

	// SearchPaths returns every recorded path, across hosts and runs, that
	// contains at least one of the substrings. Matching is case-sensitive.
	SearchPaths(substrings []string) ([]*model.SearchResult, error)

	// FileVersions returns the recorded states of one logical file path of
	// host, newest run first.
	FileVersions(host, path string) ([]*model.FileVersion, error)

	Close() error
}

// MetadataTx is a write batch. Every call takes the run id explicitly.
type MetadataTx interface {
	RecordDirectory(rec *model.DirectoryRecord) error
	RecordLink(rec *model.LinkRecord) error
	RecordFile(rec *model.FileRecord) error

	// FindReusableContentKey behaves like MetadataStore.FindReusableContentKey
	// but reads through the open batch.
	FindReusableContentKey(host, path string, size int64, modTime time.Time) (model.ContentKey, bool, error)

	Commit() error
	Rollback() error
}
