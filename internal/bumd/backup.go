package bumd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"bumd-go/internal/model"
)

// errWalkAborted stops the walk when the context is cancelled. It never
// leaves Backup.
var errWalkAborted = errors.New("walk aborted")

// BackupOptions describes one backup invocation.
type BackupOptions struct {
	Host       string
	SourceBase string   // optional prefix replaced by "/" in logical paths
	Subjects   []string // files, symlinks or directories to back up
	BatchSize  int      // records per metadata batch; DefaultBatchSize when <= 0
}

// DefaultBatchSize is the number of records committed together when
// BackupOptions.BatchSize is unset.
const DefaultBatchSize = 1000

// BackupResult summarizes a finished run.
type BackupResult struct {
	RunID       int64
	Status      model.RunStatus
	Directories int
	Links       int
	Files       int
	Hashed      int // files read and hashed
	Reused      int // files whose key came from a previous run
	Sent        int // objects written to the content store
	SentBytes   int64
	Skipped     int // entries skipped after a transient error
}

// walkOutcome is the result of walking every subject. The run is finished
// from it exactly once.
type walkOutcome struct {
	status model.RunStatus
	err    error
}

type subject struct {
	path    string
	logical string
}

// Backup creates a run for opts.Host and records every entry beneath the
// subjects. Content is hashed only when no finished run recorded the same
// path with equal size and mtime, and stored only when the content store
// does not hold the key yet.
//
// A cancelled ctx finishes the run as Aborted and returns no error. Any
// metadata or content store failure finishes the run as Failed and is
// returned. The returned result is non-nil whenever a run was created.
func (s *Service) Backup(ctx context.Context, opts BackupOptions) (*BackupResult, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if len(opts.Subjects) == 0 {
		return nil, fmt.Errorf("at least one subject is required")
	}

	subjects := make([]subject, 0, len(opts.Subjects))
	for _, raw := range opts.Subjects {
		abs, err := filepath.Abs(raw)
		if err != nil {
			return nil, fmt.Errorf("resolving absolute path: %w", err)
		}
		logical, err := LogicalPath(abs, opts.SourceBase)
		if err != nil {
			return nil, err
		}
		subjects = append(subjects, subject{path: abs, logical: logical})
	}

	runID, err := s.db.CreateRun(opts.Host, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	s.logger.Info("backup started", "run", runID, "host", opts.Host, "subjects", len(subjects))

	result := &BackupResult{RunID: runID}
	outcome := s.walkSubjects(ctx, runID, opts, subjects, result)
	result.Status = outcome.status

	if err := s.db.FinishRun(runID, outcome.status, s.clock.Now()); err != nil {
		s.logger.Error("finishing run failed", "run", runID, "error", err)
		return result, errors.Join(outcome.err, fmt.Errorf("finishing run %d: %w", runID, err))
	}

	switch outcome.status {
	case model.StatusComplete:
		s.logger.Info("backup complete", "run", runID,
			"directories", result.Directories, "links", result.Links, "files", result.Files,
			"hashed", result.Hashed, "reused", result.Reused, "sent", result.Sent,
			"sent_bytes", result.SentBytes, "skipped", result.Skipped)
	case model.StatusAborted:
		s.logger.Warn("backup aborted", "run", runID)
	default:
		s.logger.Error("backup failed", "run", runID, "error", outcome.err)
	}
	return result, outcome.err
}

// walkSubjects walks each subject in metadata batches and turns the way the
// walk ended into an outcome. A batch is committed when it holds
// opts.BatchSize records and at the end of each subject, so a failure only
// loses the batch in flight.
func (s *Service) walkSubjects(ctx context.Context, runID int64, opts BackupOptions, subjects []subject, result *BackupResult) walkOutcome {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	for _, subj := range subjects {
		if ctx.Err() != nil {
			return walkOutcome{status: model.StatusAborted}
		}

		tx, err := s.db.Begin()
		if err != nil {
			return walkOutcome{status: model.StatusFailed, err: fmt.Errorf("starting batch: %w", err)}
		}

		w := &walker{
			svc:        s,
			tx:         tx,
			runID:      runID,
			host:       opts.Host,
			sourceBase: opts.SourceBase,
			root:       subj.path,
			result:     result,
			batchSize:  batchSize,
		}
		walkErr := w.walkSubject(ctx)
		tx = w.tx

		switch {
		case walkErr == nil:
			if err := tx.Commit(); err != nil {
				return walkOutcome{status: model.StatusFailed, err: fmt.Errorf("committing batch for %s: %w", subj.path, err)}
			}
			s.logger.Debug("subject committed", "run", runID, "path", subj.path, "logical", subj.logical)
		case errors.Is(walkErr, errWalkAborted):
			// Everything recorded so far is consistent, so keep it.
			if err := tx.Commit(); err != nil {
				return walkOutcome{status: model.StatusFailed, err: fmt.Errorf("committing batch for %s: %w", subj.path, err)}
			}
			return walkOutcome{status: model.StatusAborted}
		default:
			if err := tx.Rollback(); err != nil {
				s.logger.Warn("rolling back batch failed", "run", runID, "error", err)
			}
			return walkOutcome{status: model.StatusFailed, err: walkErr}
		}
	}
	return walkOutcome{status: model.StatusComplete}
}

// walker records the entries of one subject in batches.
type walker struct {
	svc        *Service
	tx         MetadataTx
	runID      int64
	host       string
	sourceBase string
	root       string
	result     *BackupResult
	batchSize  int
	pending    int
}

func (w *walker) walkSubject(ctx context.Context) error {
	return w.visitPath(ctx, w.root)
}

// recorded counts one record in the current batch and, once the batch is
// full, commits it and starts the next one.
func (w *walker) recorded() error {
	w.pending++
	if w.pending < w.batchSize {
		return nil
	}
	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	tx, err := w.svc.db.Begin()
	if err != nil {
		return fmt.Errorf("starting batch: %w", err)
	}
	w.tx = tx
	w.pending = 0
	w.svc.logger.Debug("batch committed", "run", w.runID, "records", w.batchSize)
	return nil
}

// visitPath lstats path and visits it. Transient errors on the entry are
// reported and swallowed; everything else stops the walk.
func (w *walker) visitPath(ctx context.Context, path string) error {
	if ctx.Err() != nil {
		return errWalkAborted
	}

	info, err := w.svc.fsys.Lstat(path)
	if err != nil {
		w.skip(path, &EntryError{Op: "lstat", Path: path, Err: err})
		return nil
	}

	switch mode := info.Mode(); {
	case mode.IsDir():
		err = w.visitDir(ctx, path, info)
	case mode&fs.ModeSymlink != 0:
		err = w.visitLink(path)
	case mode.IsRegular():
		err = w.visitFile(path, info)
	default:
		// Devices, sockets and named pipes are not backed up.
		return nil
	}

	if err != nil && IsEntryError(err) {
		w.skip(path, err)
		return nil
	}
	return err
}

// visitDir records the directory, then its non-directory entries in name
// order, then descends into its subdirectories.
func (w *walker) visitDir(ctx context.Context, path string, info fs.FileInfo) error {
	st, err := w.svc.fsys.StatData(info)
	if err != nil {
		return &EntryError{Op: "stat", Path: path, Err: err}
	}
	logical, err := LogicalPath(path, w.sourceBase)
	if err != nil {
		return err
	}

	w.svc.progress.Report(ActionDir, path)
	rec := &model.DirectoryRecord{
		RunID:   w.runID,
		Path:    logical,
		UID:     st.UID,
		GID:     st.GID,
		Mode:    st.Mode,
		ModTime: st.ModTime,
	}
	if err := w.tx.RecordDirectory(rec); err != nil {
		return fmt.Errorf("recording directory %s: %w", logical, err)
	}
	w.result.Directories++
	if err := w.recorded(); err != nil {
		return err
	}

	entries, err := w.svc.fsys.ReadDir(path)
	if err != nil {
		return &EntryError{Op: "readdir", Path: path, Err: err}
	}

	var subdirs []string
	for _, e := range entries {
		child := filepath.Join(path, e.Name())
		if w.excluded(child) {
			w.svc.logger.Debug("excluded", "path", child)
			continue
		}
		if e.IsDir() {
			subdirs = append(subdirs, child)
			continue
		}
		if err := w.visitPath(ctx, child); err != nil {
			return err
		}
	}

	for _, dir := range subdirs {
		if err := w.visitPath(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) visitLink(path string) error {
	target, err := w.svc.fsys.Readlink(path)
	if err != nil {
		return &EntryError{Op: "readlink", Path: path, Err: err}
	}
	logical, err := LogicalPath(path, w.sourceBase)
	if err != nil {
		return err
	}

	w.svc.progress.Report(ActionLink, path)
	if err := w.tx.RecordLink(&model.LinkRecord{RunID: w.runID, Path: logical, Target: target}); err != nil {
		return fmt.Errorf("recording link %s: %w", logical, err)
	}
	w.result.Links++
	return w.recorded()
}

// visitFile resolves the content key of a regular file, makes sure the
// content is stored, and records the file. The content is stored before the
// record is written so a skipped file never leaves a dangling key.
func (w *walker) visitFile(path string, info fs.FileInfo) error {
	st, err := w.svc.fsys.StatData(info)
	if err != nil {
		return &EntryError{Op: "stat", Path: path, Err: err}
	}
	logical, err := LogicalPath(path, w.sourceBase)
	if err != nil {
		return err
	}
	size := info.Size()

	w.svc.progress.Report(ActionFile, path)

	key, reused, err := w.tx.FindReusableContentKey(w.host, logical, size, st.ModTime)
	if err != nil {
		return fmt.Errorf("looking up reusable content for %s: %w", logical, err)
	}
	if reused {
		exists, err := w.svc.store.Exists(key)
		if err != nil {
			return fmt.Errorf("checking content %s: %w", key, err)
		}
		if !exists {
			w.svc.logger.Warn("reusable content missing from repository, rehashing", "path", logical, "key", key)
			reused = false
		}
	}

	if reused {
		w.svc.progress.Report(ActionReuse, path)
		w.result.Reused++
	} else {
		w.svc.progress.Report(ActionHash, path)
		key, err = w.svc.store.HashOf(path)
		if err != nil {
			return fmt.Errorf("hashing %s: %w", path, err)
		}
		w.result.Hashed++

		if err := w.checkUnchanged(path, info); err != nil {
			return err
		}

		exists, err := w.svc.store.Exists(key)
		if err != nil {
			return fmt.Errorf("checking content %s: %w", key, err)
		}
		if !exists {
			w.svc.progress.Report(ActionSend, path)
			if err := w.svc.store.Put(path, key); err != nil {
				if errors.Is(err, ErrCorruption) {
					// The source was modified after hashing.
					if changed := w.checkUnchanged(path, info); changed != nil {
						return changed
					}
				}
				return fmt.Errorf("storing %s: %w", path, err)
			}
			w.result.Sent++
			w.result.SentBytes += size
		}
	}

	rec := &model.FileRecord{
		RunID:   w.runID,
		Path:    logical,
		UID:     st.UID,
		GID:     st.GID,
		Mode:    st.Mode,
		Size:    size,
		ModTime: st.ModTime,
		Key:     key,
	}
	if err := w.tx.RecordFile(rec); err != nil {
		return fmt.Errorf("recording file %s: %w", logical, err)
	}
	w.result.Files++
	return w.recorded()
}

// checkUnchanged re-stats a file after hashing. A file whose size or mtime
// moved while it was read is skipped rather than recorded with a key that
// may not match what a later run would see.
func (w *walker) checkUnchanged(path string, before fs.FileInfo) error {
	after, err := w.svc.fsys.Lstat(path)
	if err != nil {
		return &EntryError{Op: "lstat", Path: path, Err: err}
	}
	if after.Size() != before.Size() {
		return &EntryError{Op: "hash", Path: path, Err: fmt.Errorf("size changed while reading: %d -> %d", before.Size(), after.Size())}
	}
	if !after.ModTime().Equal(before.ModTime()) {
		return &EntryError{Op: "hash", Path: path, Err: fmt.Errorf("mtime changed while reading: %v -> %v", before.ModTime(), after.ModTime())}
	}
	return nil
}

func (w *walker) excluded(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	return w.svc.fsys.IsExcluded(rel)
}

func (w *walker) skip(path string, err error) {
	w.svc.logger.Warn("skipping entry", "path", path, "error", err)
	w.svc.progress.Report(ActionSkip, path)
	w.result.Skipped++
}
