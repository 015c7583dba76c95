package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"bumd-go/internal/bumd"
	"bumd-go/internal/cas"
	"bumd-go/internal/config"
	"bumd-go/internal/database"
	"bumd-go/internal/fs"
	"bumd-go/internal/model"
)

// Options controls how an App reports to the terminal.
type Options struct {
	// Verbose prints progress lines and enables debug logging.
	Verbose bool
	// Stdout receives progress lines. Defaults to os.Stdout.
	Stdout io.Writer
	// Stderr receives warnings and errors. Defaults to os.Stderr.
	Stderr io.Writer
}

// BumdApp is the application layer between the CLI and bumd.Service.
// It constructs all dependencies from a resolved config, exposes high-level
// operations that accept raw CLI values, and closes the database and log
// on Close.
type BumdApp struct {
	cfg     *config.Config
	db      bumd.MetadataStore
	store   bumd.ContentStore
	service *bumd.Service
	op      *Operation
	logger  *slog.Logger
	logFile io.Closer
}

// NewBumdApp creates a fully wired BumdApp from cfg, which must already be
// resolved against its storage root. operation and parameters identify the
// CLI command being run. The caller must call Close when done.
func NewBumdApp(cfg *config.Config, operation, parameters string, opts Options) (*BumdApp, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("no host configured")
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	level, err := ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}

	op := NewOperation(operation, parameters)
	logger, logFile, err := newLogger(cfg.Log, op.ID, level, opts.Stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	store, err := cas.NewContentStoreFromConfig(cfg.Repository)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating repository: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}

	var progress bumd.Progress = bumd.NopProgress{}
	if opts.Verbose {
		progress = newProgressPrinter(opts.Stdout)
	}

	fsys := fs.NewOSFilesystem(cfg.Filesystem.Exclude)
	svc := bumd.NewService(db, store, fsys, &slogAdapter{l: logger}, progress, bumd.RealClock{})

	logger.Info("operation started", "operation", op.Name, "parameters", op.Parameters,
		"host", cfg.Host, "database", cfg.Database.Path, "repository", cfg.Repository.Path)

	return &BumdApp{
		cfg:     cfg,
		db:      db,
		store:   store,
		service: svc,
		op:      op,
		logger:  logger,
		logFile: logFile,
	}, nil
}

// Config returns the resolved configuration.
func (a *BumdApp) Config() *config.Config {
	return a.cfg
}

// Backup backs up the given subjects for the configured host.
func (a *BumdApp) Backup(ctx context.Context, subjects []string) (*bumd.BackupResult, error) {
	res, err := a.service.Backup(ctx, bumd.BackupOptions{
		Host:       a.cfg.Host,
		SourceBase: a.cfg.SourceBase,
		Subjects:   subjects,
		BatchSize:  a.cfg.Backup.BatchSize,
	})
	if err == nil && res.Status == model.StatusAborted {
		a.op.Status = "aborted"
	}
	return res, a.op.Fail(err)
}

// Restore restores a run into opts.Destination. The configured host and
// worker count are used when opts leaves them unset.
func (a *BumdApp) Restore(ctx context.Context, opts bumd.RestoreOptions) (*bumd.RestoreResult, error) {
	if opts.Host == "" {
		opts.Host = a.cfg.Host
	}
	if opts.Workers <= 0 {
		opts.Workers = a.cfg.Restore.Workers
	}
	res, err := a.service.Restore(ctx, opts)
	return res, a.op.Fail(err)
}

// ListRuns lists the runs of the configured host started within the raw
// bounds. allHosts lists the runs of every host instead.
func (a *BumdApp) ListRuns(allHosts bool, rawNotBefore, rawNotAfter string) ([]*model.Run, error) {
	notBefore, err := ParseTimeBound(rawNotBefore)
	if err != nil {
		return nil, a.op.Fail(err)
	}
	notAfter, err := ParseTimeBound(rawNotAfter)
	if err != nil {
		return nil, a.op.Fail(err)
	}
	host := a.cfg.Host
	if allHosts {
		host = ""
	}
	runs, err := a.service.ListRuns(host, notBefore, notAfter)
	return runs, a.op.Fail(err)
}

// Search returns every recorded path containing one of the substrings.
func (a *BumdApp) Search(substrings []string) ([]*model.SearchResult, error) {
	results, err := a.service.Search(substrings)
	return results, a.op.Fail(err)
}

// History returns the recorded versions of a logical file path of the
// configured host.
func (a *BumdApp) History(logicalPath string) ([]*model.FileVersion, error) {
	versions, err := a.service.FileHistory(a.cfg.Host, logicalPath)
	return versions, a.op.Fail(err)
}

// Verify checks that a run's content is present in the repository. A zero
// runID checks the latest complete run of the configured host.
func (a *BumdApp) Verify(ctx context.Context, runID int64) (*bumd.VerifyResult, error) {
	res, err := a.service.Verify(ctx, runID, a.cfg.Host)
	return res, a.op.Fail(err)
}

// Close logs the outcome of the operation and closes all resources.
func (a *BumdApp) Close() error {
	var firstErr error

	a.logger.Info("operation finished", "operation", a.op.Name, "status", a.op.Status,
		"duration", time.Since(a.op.StartedAt).Truncate(time.Millisecond))

	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}

	return firstErr
}
