package bumd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"bumd-go/internal/model"
)

// DefaultRestoreWorkers is the number of files restored concurrently when
// RestoreOptions.Workers is not set.
const DefaultRestoreWorkers = 4

// RestoreOptions describes one restore invocation.
type RestoreOptions struct {
	// RunID selects the run. Zero selects the most recent complete run of
	// Host.
	RunID         int64
	Host          string
	Destination   string
	Filters       []string // logical path prefixes; empty restores everything
	SkipOwnership bool     // leave owner and group as the restoring user
	Workers       int
}

// RestoreResult summarizes a finished restore.
type RestoreResult struct {
	RunID       int64
	Directories int
	Links       int
	Files       int
	Bytes       int64
}

// Restore rebuilds the tree recorded by a run under opts.Destination.
// Directories are created first, then links, then files. Directory modes
// and timestamps are applied once more after all files are written so the
// tree matches the recorded state exactly. Any error stops the restore.
func (s *Service) Restore(ctx context.Context, opts RestoreOptions) (*RestoreResult, error) {
	if opts.Destination == "" {
		return nil, fmt.Errorf("destination is required")
	}
	dest, err := filepath.Abs(opts.Destination)
	if err != nil {
		return nil, fmt.Errorf("resolving destination: %w", err)
	}

	run, err := s.resolveRun(opts.RunID, opts.Host)
	if err != nil {
		return nil, err
	}
	filters := NormalizeFilters(opts.Filters)

	dirs, err := s.db.ListDirectories(run.ID, filters)
	if err != nil {
		return nil, fmt.Errorf("listing directories: %w", err)
	}
	links, err := s.db.ListLinks(run.ID, filters)
	if err != nil {
		return nil, fmt.Errorf("listing links: %w", err)
	}
	files, err := s.db.ListFiles(run.ID, filters)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	s.logger.Info("restore started", "run", run.ID, "host", run.Host, "destination", dest,
		"directories", len(dirs), "links", len(links), "files", len(files))

	// Parents before children regardless of the order rows came back in.
	sort.SliceStable(dirs, func(i, j int) bool {
		di, dj := pathDepth(dirs[i].Path), pathDepth(dirs[j].Path)
		if di != dj {
			return di < dj
		}
		return dirs[i].Path < dirs[j].Path
	})

	if err := s.fsys.MkdirAll(dest); err != nil {
		return nil, fmt.Errorf("creating destination: %w", err)
	}

	result := &RestoreResult{RunID: run.ID}

	for _, rec := range dirs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.restoreDirectory(dest, rec, opts.SkipOwnership); err != nil {
			return result, err
		}
		result.Directories++
	}

	for _, rec := range links {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.restoreLink(dest, rec); err != nil {
			return result, err
		}
		result.Links++
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultRestoreWorkers
	}
	var restored, bytes atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, rec := range files {
		rec := rec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := s.restoreFile(dest, rec, opts.SkipOwnership); err != nil {
				return err
			}
			restored.Add(1)
			bytes.Add(rec.Size)
			return nil
		})
	}
	err = g.Wait()
	result.Files = int(restored.Load())
	result.Bytes = bytes.Load()
	if err != nil {
		return result, err
	}

	// Deepest first, so every directory ends with its recorded mode and mtime.
	for i := len(dirs) - 1; i >= 0; i-- {
		rec := dirs[i]
		target := DestinationPath(dest, rec.Path)
		if err := s.fsys.Chmod(target, rec.Mode); err != nil {
			return result, fmt.Errorf("setting mode of %s: %w", target, err)
		}
		if err := s.fsys.SetModTime(target, rec.ModTime); err != nil {
			return result, fmt.Errorf("setting mtime of %s: %w", target, err)
		}
	}

	s.logger.Info("restore complete", "run", run.ID, "directories", result.Directories,
		"links", result.Links, "files", result.Files, "bytes", result.Bytes)
	return result, nil
}

// resolveRun returns the run with the given id, or the latest complete run
// of host when id is zero.
func (s *Service) resolveRun(runID int64, host string) (*model.Run, error) {
	if runID != 0 {
		run, err := s.db.GetRun(runID)
		if err != nil {
			return nil, fmt.Errorf("finding run %d: %w", runID, err)
		}
		if run == nil {
			return nil, fmt.Errorf("run %d: %w", runID, ErrNotFound)
		}
		return run, nil
	}

	if host == "" {
		return nil, fmt.Errorf("host is required to select the latest run")
	}
	run, err := s.db.LatestRun(host, model.StatusComplete)
	if err != nil {
		return nil, fmt.Errorf("finding latest run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("no complete run for host %s: %w", host, ErrNotFound)
	}
	return run, nil
}

func (s *Service) restoreDirectory(dest string, rec *model.DirectoryRecord, skipOwnership bool) error {
	target := DestinationPath(dest, rec.Path)

	info, err := s.fsys.Lstat(target)
	switch {
	case err == nil && !info.IsDir():
		return ConflictError(target, "not a directory")
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("checking %s: %w", target, err)
	}

	s.progress.Report(ActionDir, target)
	if err := s.fsys.MkdirAll(target); err != nil {
		return fmt.Errorf("creating directory %s: %w", target, err)
	}
	if err := s.applyOwner(target, rec.UID, rec.GID, skipOwnership); err != nil {
		return err
	}
	// Keep the owner able to create children until the final pass.
	if err := s.fsys.Chmod(target, rec.Mode|0o700); err != nil {
		return fmt.Errorf("setting mode of %s: %w", target, err)
	}
	if err := s.fsys.SetModTime(target, rec.ModTime); err != nil {
		return fmt.Errorf("setting mtime of %s: %w", target, err)
	}
	return nil
}

func (s *Service) restoreLink(dest string, rec *model.LinkRecord) error {
	target := DestinationPath(dest, rec.Path)

	info, err := s.fsys.Lstat(target)
	switch {
	case err == nil && info.Mode()&fs.ModeSymlink == 0:
		return ConflictError(target, "not a symlink")
	case err == nil:
		if err := s.fsys.Remove(target); err != nil {
			return fmt.Errorf("removing existing link %s: %w", target, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("checking %s: %w", target, err)
	}

	s.progress.Report(ActionLink, target)
	if err := s.fsys.MkdirAll(filepath.Dir(target)); err != nil {
		return fmt.Errorf("creating parent of %s: %w", target, err)
	}
	if err := s.fsys.Symlink(rec.Target, target); err != nil {
		return fmt.Errorf("creating link %s: %w", target, err)
	}
	return nil
}

func (s *Service) restoreFile(dest string, rec *model.FileRecord, skipOwnership bool) error {
	target := DestinationPath(dest, rec.Path)

	info, err := s.fsys.Lstat(target)
	switch {
	case err == nil && !info.Mode().IsRegular():
		return ConflictError(target, "not a regular file")
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("checking %s: %w", target, err)
	}

	s.progress.Report(ActionFile, target)
	if err := s.fsys.MkdirAll(filepath.Dir(target)); err != nil {
		return fmt.Errorf("creating parent of %s: %w", target, err)
	}
	if err := s.store.Get(rec.Key, target); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s references missing content %s", ErrCorruption, rec.Path, rec.Key)
		}
		return fmt.Errorf("retrieving %s: %w", rec.Path, err)
	}
	if err := s.applyOwner(target, rec.UID, rec.GID, skipOwnership); err != nil {
		return err
	}
	if err := s.fsys.Chmod(target, rec.Mode); err != nil {
		return fmt.Errorf("setting mode of %s: %w", target, err)
	}
	if err := s.fsys.SetModTime(target, rec.ModTime); err != nil {
		return fmt.Errorf("setting mtime of %s: %w", target, err)
	}
	return nil
}

// applyOwner must run before Chmod, since chown clears setuid and setgid.
func (s *Service) applyOwner(target string, uid, gid uint32, skip bool) error {
	if skip {
		return nil
	}
	if err := s.fsys.Lchown(target, uid, gid); err != nil {
		return fmt.Errorf("setting owner of %s: %w", target, err)
	}
	return nil
}
